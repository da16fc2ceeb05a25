//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package injector

import (
	"github.com/google/wire"

	"github.com/zeusync/playsync/internal/config"
	"github.com/zeusync/playsync/internal/core/document"
)

func InitializeMaster(cfg *config.Config, master *document.Document) (*Master, func(), error) {
	wire.Build(MasterSet)
	return nil, nil, nil
}

func InitializeSlave(cfg *config.Config) (*Slave, func(), error) {
	wire.Build(SlaveSet)
	return nil, nil, nil
}
