package handler

import (
	"chatterbox/internal/app/chat"
	"chatterbox/internal/app/gateway"
	"chatterbox/internal/app/user"
	"chatterbox/internal/configs"
	"chatterbox/internal/pkg/pow"
)

// AppDeps carries the services the handlers delegate to.
type AppDeps struct {
	Config  *configs.AppConfig
	Users   *user.Service
	Chats   *chat.Service
	Gateway *gateway.Gateway
	Pow     *pow.Manager
}
