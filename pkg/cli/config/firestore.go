package config

import (
	"context"
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/agentrun/pkg/domain/model/errs"
	"github.com/secmon-lab/agentrun/pkg/repository/firestore"
	"github.com/urfave/cli/v3"
)

// Firestore is the catalog backend for multi instance deployments
type Firestore struct {
	projectID  string
	databaseID string
	collection string
}

func (c *Firestore) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "firestore-project-id",
			Usage:       "Firestore project ID (catalog backend firestore)",
			Destination: &c.projectID,
			Category:    "Firestore",
			Sources:     cli.EnvVars("AGENTRUN_FIRESTORE_PROJECT_ID"),
		},
		&cli.StringFlag{
			Name:        "firestore-database-id",
			Usage:       "Firestore database ID",
			Destination: &c.databaseID,
			Category:    "Firestore",
			Sources:     cli.EnvVars("AGENTRUN_FIRESTORE_DATABASE_ID"),
			Value:       "(default)",
		},
		&cli.StringFlag{
			Name:        "firestore-collection",
			Usage:       "Collection of history catalogs and preferences",
			Destination: &c.collection,
			Category:    "Firestore",
			Sources:     cli.EnvVars("AGENTRUN_FIRESTORE_COLLECTION"),
			Value:       firestore.DefaultCollection,
		},
	}
}

func (c Firestore) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("project_id", c.projectID),
		slog.String("database_id", c.databaseID),
		slog.String("collection", c.collection),
	)
}

func (c *Firestore) Configure(ctx context.Context) (*firestore.Firestore, error) {
	if c.projectID == "" {
		return nil, goerr.New("--firestore-project-id is required for the firestore catalog",
			goerr.T(errs.TagValidation))
	}

	var opts []firestore.Option
	if c.collection != "" {
		opts = append(opts, firestore.WithCollection(c.collection))
	}
	return firestore.New(ctx, c.projectID, c.databaseID, opts...)
}
