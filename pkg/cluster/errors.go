package cluster

import "errors"

var (
    ErrStopped      = errors.New("cluster: node stopped")
    ErrNoMembership = errors.New("cluster: nil Membership")
    ErrNoSeeds      = errors.New("cluster: no seed could be joined")
)
