package main

import (
	"log"
	"net/http"

	"go.uber.org/fx"

	"github.com/destekhq/support-platform/internal/admin"
	"github.com/destekhq/support-platform/internal/chat"
	"github.com/destekhq/support-platform/internal/maintenance"
	"github.com/destekhq/support-platform/internal/signaling"
	"github.com/destekhq/support-platform/internal/storage"
	"github.com/destekhq/support-platform/internal/system"
	"github.com/destekhq/support-platform/internal/telegram"
	"github.com/destekhq/support-platform/pkg/protocol"
	"github.com/destekhq/support-platform/pkg/service"

	_ "net/http/pprof"
)

func main() {
	go func() {
		log.Println(http.ListenAndServe("localhost:6060", nil))
	}()

	fx.New(
		fx.Provide(
			signaling.NewRoomRegistry,
			signaling.NewCallConfig,
			signaling.NewCallService,
			chat.NewChatService,
			storage.NewStorage,
			telegram.NewConfig,
			telegram.NewBotNotifier,
			admin.NewOTPService,
			maintenance.NewSelfTest,
			maintenance.NewRepairer,
			maintenance.NewScheduler,

			func(s *storage.Storage) signaling.RoomKeyVerifier { return s },
			func(n *telegram.BotNotifier) signaling.Notifier { return n },
			func(n *telegram.BotNotifier) chat.Notifier { return n },
			func(n *telegram.BotNotifier) maintenance.Notifier { return n },
			func(n *telegram.BotNotifier) admin.OTPSender { return n },

			protocol.AsHttpController(signaling.NewCallController),
			protocol.AsHttpController(chat.NewChatController),
			protocol.AsHttpController(admin.NewAdminController),
			protocol.AsHttpController(telegram.NewWebhookController),
			protocol.AsHttpController(maintenance.NewMaintenanceController),
			protocol.AsHttpController(system.NewSystemController),
		),

		fx.Invoke(maintenance.Run),

		service.LoggerModule,
		service.DatabaseModule,
		service.HttpModule,
	).Run()
}
