package cli_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/exalsius/node-agent/internal/cli"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCmdName = "exalsius-cli-test"

func TestInitViperConfig(t *testing.T) {
	tests := map[string]struct {
		config *string
		env    map[string]string

		want    map[string]string
		wantErr bool
	}{
		"No configuration file": {
			want: map[string]string{"node-id": ""},
		},
		"Values from the configuration file": {
			config: ptr("node-id: node-1\napi-url: https://api.exalsius.ai\n"),
			want:   map[string]string{"node-id": "node-1", "api-url": "https://api.exalsius.ai"},
		},
		"Values from the environment": {
			env:  map[string]string{"EXALSIUS_CLI_TEST_NODE_ID": "node-2", "EXALSIUS_CLI_TEST_AUTH0_CLIENT_DOMAIN": "exalsius.eu.auth0.com"},
			want: map[string]string{"node-id": "node-2", "auth0-client-domain": "exalsius.eu.auth0.com"},
		},
		"Environment takes precedence over the configuration file": {
			config: ptr("node-id: node-1\n"),
			env:    map[string]string{"EXALSIUS_CLI_TEST_NODE_ID": "node-2"},
			want:   map[string]string{"node-id": "node-2"},
		},
		"Unrelated environment is ignored": {
			env:  map[string]string{"EXALSIUS_OTHER_NODE_ID": "node-3"},
			want: map[string]string{"node-id": ""},
		},

		// Error cases
		"Error on invalid configuration file": {
			config:  ptr("node-id: [unterminated\n"),
			wantErr: true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}

			cmd := &cobra.Command{Use: testCmdName}
			cli.InstallConfigFlag(cmd)
			if tc.config != nil {
				p := filepath.Join(t.TempDir(), "config.yaml")
				require.NoError(t, os.WriteFile(p, []byte(*tc.config), 0600), "Setup: could not write config file")
				require.NoError(t, cmd.PersistentFlags().Set("config", p), "Setup: could not set config flag")
			}
			cmd.Flags().AddFlagSet(cmd.PersistentFlags())

			vip := viper.New()
			err := cli.InitViperConfig(testCmdName, cmd, vip)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)

			for k, want := range tc.want {
				assert.Equal(t, want, vip.GetString(k), "Unexpected value for %s", k)
			}
		})
	}
}

func TestEnvPrefix(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "EXALSIUS_NODE_AGENT_", cli.EnvPrefix("exalsius-node-agent"))
}

func TestDecodeHook(t *testing.T) {
	t.Parallel()

	vip := viper.New()
	vip.Set("timeout", "1m30s")
	vip.Set("paths", "/usr/share/hwdata/pci.ids,/usr/share/misc/pci.ids")

	var got struct {
		Timeout time.Duration
		Paths   []string
	}
	require.NoError(t, vip.Unmarshal(&got, cli.DecodeHook()))

	assert.Equal(t, 90*time.Second, got.Timeout)
	assert.Equal(t, []string{"/usr/share/hwdata/pci.ids", "/usr/share/misc/pci.ids"}, got.Paths)
}

func ptr[T any](v T) *T {
	return &v
}
