// Package config provides helpers for reading and updating a remote
// node's reserved communication-profile objects, i.e. objects between
// 0x1000 and 0x2000. No dictionary needs to be populated for these: every
// accessor goes straight through an SDO client.
package config

import (
	"github.com/sirupsen/logrus"

	"github.com/canopen-go/master/pkg/sdo"
)

var log = logrus.WithField("component", "config")

// NodeConfigurator bundles the communication-profile accessors for one
// node behind its SDO client.
type NodeConfigurator struct {
	client *sdo.Client
}

// NewNodeConfigurator wraps an existing SDO client. The client determines
// which node is being configured.
func NewNodeConfigurator(client *sdo.Client) *NodeConfigurator {
	return &NodeConfigurator{client: client}
}
