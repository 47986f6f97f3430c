package maintenance

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/destekhq/support-platform/internal/signaling"
	"github.com/destekhq/support-platform/internal/storage"
)

type RepairPlan struct {
	RoomStateCleanup struct {
		EmptyRooms []string `json:"empty_rooms"`
	} `json:"room_state_cleanup"`
	DBBackfill struct {
		MissingRecords int `json:"missing_records"`
	} `json:"db_backfill"`
	ICEReload bool `json:"ice_reload"`
}

type RepairResult struct {
	RoomStateCleanup int  `json:"room_state_cleanup"`
	DBBackfill       int  `json:"db_backfill"`
	ICEReload        bool `json:"ice_reload"`
}

// Repairer implements "safe" maintenance only: operations that are
// idempotent and cannot lose data. Destructive modes stay unimplemented on
// purpose.
type Repairer struct {
	storage  *storage.Storage
	registry *signaling.RoomRegistry
	logger   *slog.Logger
}

type NewRepairer_Params struct {
	fx.In

	Storage  *storage.Storage
	Registry *signaling.RoomRegistry
	Logger   *slog.Logger
}

func NewRepairer(params NewRepairer_Params) *Repairer {
	return &Repairer{
		storage:  params.Storage,
		registry: params.Registry,
		logger:   params.Logger,
	}
}

// Plan reports what Apply would do, without touching anything.
func (r *Repairer) Plan() (RepairPlan, error) {
	var plan RepairPlan
	plan.RoomStateCleanup.EmptyRooms = []string{}
	plan.ICEReload = true

	for _, room := range r.registry.Snapshot() {
		if len(room.Members) == 0 {
			plan.RoomStateCleanup.EmptyRooms = append(plan.RoomStateCleanup.EmptyRooms, room.RoomID)
		}
	}

	missing, err := r.storage.MissingRecords()
	if err != nil {
		return plan, err
	}
	plan.DBBackfill.MissingRecords = missing
	return plan, nil
}

// Apply runs the safe repairs and reports per-step counts.
func (r *Repairer) Apply() (RepairResult, error) {
	result := RepairResult{ICEReload: true}

	result.RoomStateCleanup = r.registry.PruneEmpty()

	backfilled, err := r.storage.Backfill()
	result.DBBackfill = backfilled
	if err != nil {
		return result, err
	}

	r.logger.Info("safe repair applied",
		slog.Int("rooms_pruned", result.RoomStateCleanup),
		slog.Int("backfilled", result.DBBackfill))
	return result, nil
}
