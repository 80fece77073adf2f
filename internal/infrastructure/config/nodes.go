package config

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"

	"github.com/iho/satledger/internal/domain"
)

// NodeConfig describes one backing lnd node.
type NodeConfig struct {
	ID           string `mapstructure:"id"`
	Host         string `mapstructure:"host"`
	Role         string `mapstructure:"role"`
	TLSCertPath  string `mapstructure:"tls_cert_path"`
	MacaroonPath string `mapstructure:"macaroon_path"`
}

// Connection converts the descriptor into the monitor's node record.
func (n NodeConfig) Connection() (domain.NodeConnection, error) {
	role, err := domain.ParseNodeRole(n.Role)
	if err != nil {
		return domain.NodeConnection{}, fmt.Errorf("node %s: %w", n.ID, err)
	}
	return domain.NodeConnection{
		ID:    n.ID,
		Host:  n.Host,
		Role:  role,
		State: domain.NodeStateUnknown,
	}, nil
}

// LoadNodes reads the node descriptor file. The format follows the file
// extension (yaml, json or toml).
//
//	nodes:
//	  - id: lnd1
//	    host: localhost:10009
//	    role: both
//	    tls_cert_path: /lnd/tls.cert
//	    macaroon_path: /lnd/admin.macaroon
func LoadNodes(path string) ([]NodeConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read node file %s: %w", path, err)
	}

	var file struct {
		Nodes []NodeConfig `mapstructure:"nodes"`
	}
	if err := v.Unmarshal(&file); err != nil {
		return nil, fmt.Errorf("failed to decode node file %s: %w", path, err)
	}

	if len(file.Nodes) == 0 {
		return nil, errors.New("node file lists no nodes")
	}

	seen := make(map[string]struct{}, len(file.Nodes))
	for _, n := range file.Nodes {
		if n.ID == "" || n.Host == "" {
			return nil, fmt.Errorf("node entry needs id and host: %+v", n)
		}
		if _, dup := seen[n.ID]; dup {
			return nil, fmt.Errorf("duplicate node id %q", n.ID)
		}
		seen[n.ID] = struct{}{}
		if _, err := domain.ParseNodeRole(n.Role); err != nil {
			return nil, fmt.Errorf("node %s: %w", n.ID, err)
		}
	}

	return file.Nodes, nil
}
