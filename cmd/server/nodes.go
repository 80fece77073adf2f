package main

import (
	"fmt"

	"github.com/iho/satledger/internal/adapter/lnd"
	"github.com/iho/satledger/internal/domain"
	"github.com/iho/satledger/internal/infrastructure/config"
	"github.com/iho/satledger/internal/infrastructure/listener"
	"github.com/iho/satledger/internal/infrastructure/nodehealth"
	"github.com/iho/satledger/internal/usecase"
)

// nodeSet is every view of the configured nodes the server needs.
type nodeSet struct {
	connections []domain.NodeConnection
	pool        usecase.NodePool
	probers     map[string]nodehealth.Prober
	streams     map[string]listener.NodeStreams
}

// buildNodeSet opens a client for each descriptor, in file order.
func buildNodeSet(descs []config.NodeConfig, open func(config.NodeConfig) (*lnd.Node, error)) (*nodeSet, error) {
	set := &nodeSet{
		pool:    make(usecase.NodePool, len(descs)),
		probers: make(map[string]nodehealth.Prober, len(descs)),
		streams: make(map[string]listener.NodeStreams, len(descs)),
	}

	for _, d := range descs {
		conn, err := d.Connection()
		if err != nil {
			return nil, err
		}
		node, err := open(d)
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", d.ID, err)
		}

		set.connections = append(set.connections, conn)
		set.pool[d.ID] = node
		set.probers[d.ID] = node
		set.streams[d.ID] = node
	}

	return set, nil
}
