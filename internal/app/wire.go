//go:build wireinject
// +build wireinject

package app

import (
	"github.com/google/wire"
	"go.uber.org/zap"
)

func InitializeApp(logger *zap.Logger) (*App, error) {
	wire.Build(AppSet)
	return nil, nil
}
