package provider

import (
	"fmt"

	"go.uber.org/zap"
)

// New builds the adapter variant selected by cfg.ID.
func New(cfg Config, logger *zap.Logger) (Adapter, error) {
	switch cfg.ID {
	case Pinata:
		return NewPinataAdapter(cfg, logger), nil
	case Web3Storage:
		return NewWeb3StorageAdapter(cfg, logger), nil
	case NFTStorage:
		return NewNFTStorageAdapter(cfg, logger), nil
	case Infura:
		return NewInfuraAdapter(cfg, logger), nil
	case IPFSCluster:
		return NewClusterAdapter(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.ID)
	}
}
