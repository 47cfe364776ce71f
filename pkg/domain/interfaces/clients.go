package interfaces

type Clients struct {
	storage  StorageClient
	catalog  CatalogStorage
	notifier Notifier
	agent    Agent
}

type Option func(*Clients)

func WithStorageClient(storage StorageClient) Option {
	return func(c *Clients) {
		c.storage = storage
	}
}

func WithCatalogStorage(catalog CatalogStorage) Option {
	return func(c *Clients) {
		c.catalog = catalog
	}
}

func WithNotifier(notifier Notifier) Option {
	return func(c *Clients) {
		c.notifier = notifier
	}
}

func WithAgent(agent Agent) Option {
	return func(c *Clients) {
		c.agent = agent
	}
}

func NewClients(opts ...Option) *Clients {
	c := &Clients{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Clients) Storage() StorageClient {
	return c.storage
}

func (c *Clients) Catalog() CatalogStorage {
	return c.catalog
}

func (c *Clients) Notifier() Notifier {
	return c.notifier
}

func (c *Clients) Agent() Agent {
	return c.agent
}
