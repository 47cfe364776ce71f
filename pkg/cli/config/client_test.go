package config_test

import (
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/agentrun/pkg/cli/config"
	"github.com/secmon-lab/agentrun/pkg/domain/types"
)

func TestClient_RunURL(t *testing.T) {
	testCases := []struct {
		name   string
		server string
		want   string
		hasErr bool
	}{
		{name: "http", server: "http://localhost:8000", want: "ws://localhost:8000/ws/run"},
		{name: "https with slash", server: "https://example.com/", want: "wss://example.com/ws/run"},
		{name: "unsupported scheme", server: "ftp://example.com", hasErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := config.NewClientForTest(tc.server, "default").RunURL()
			if tc.hasErr {
				gt.Error(t, err)
				return
			}
			gt.NoError(t, err)
			gt.Equal(t, got, tc.want)
		})
	}
}

func TestClient_Scope(t *testing.T) {
	scope, err := config.NewClientForTest("http://localhost:8000", "alice").Scope()
	gt.NoError(t, err)
	gt.Equal(t, scope, types.Scope("alice"))

	_, err = config.NewClientForTest("http://localhost:8000", "../x").Scope()
	gt.Error(t, err)
}
