package maintenance

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/fx"

	"github.com/destekhq/support-platform/internal/signaling"
	"github.com/destekhq/support-platform/internal/storage"
	"github.com/destekhq/support-platform/pkg/variables"
)

type CheckResult struct {
	Name string `json:"name"`
	OK   bool   `json:"ok"`
	Msg  string `json:"msg"`
}

type CategoryReport struct {
	Total  int           `json:"total"`
	Passed int           `json:"passed"`
	Items  []CheckResult `json:"items"`
}

// Report maps category name to its results.
type Report map[string]CategoryReport

type check struct {
	name string
	run  func() (bool, string)
}

// SelfTest probes the running deployment: HTTP surface, configuration
// posture, database schema and the live room registry. Probes never mutate
// anything a customer can see.
type SelfTest struct {
	storage  *storage.Storage
	registry *signaling.RoomRegistry
	callCfg  signaling.CallConfig
	client   *http.Client
	baseURL  string
	logger   *slog.Logger
}

type NewSelfTest_Params struct {
	fx.In

	Storage  *storage.Storage
	Registry *signaling.RoomRegistry
	CallCfg  signaling.CallConfig
	Logger   *slog.Logger
}

func NewSelfTest(params NewSelfTest_Params) *SelfTest {
	return &SelfTest{
		storage:  params.Storage,
		registry: params.Registry,
		callCfg:  params.CallCfg,
		client:   &http.Client{Timeout: 5 * time.Second},
		baseURL:  variables.Env(variables.BASE_URL_NAME, variables.BASE_URL_DEFAULT),
		logger:   params.Logger,
	}
}

func (t *SelfTest) httpGet(path string) (bool, string) {
	resp, err := t.client.Get(t.baseURL + path)
	if err != nil {
		return false, err.Error()
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Sprintf("%s %d", path, resp.StatusCode)
	}
	return true, "200"
}

func (t *SelfTest) healthRoot() (bool, string) {
	return t.httpGet("/health")
}

func (t *SelfTest) healthICE() (bool, string) {
	resp, err := t.client.Get(t.baseURL + "/v1/api/ice-servers")
	if err != nil {
		return false, err.Error()
	}
	defer resp.Body.Close()

	var body struct {
		ICEServers []json.RawMessage `json:"iceServers"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, fmt.Sprintf("bad json %s", err)
	}
	return true, fmt.Sprintf("servers=%d", len(body.ICEServers))
}

func (t *SelfTest) requireRoomKey() (bool, string) {
	if t.callCfg.RequireRoomKey {
		return true, "REQUIRE_ROOM_KEY=true"
	}
	return false, "REQUIRE_ROOM_KEY false"
}

func (t *SelfTest) maxTwoMembers() (bool, string) {
	if t.callCfg.MaxRoomMembers == 2 {
		return true, "MAX_ROOM_MEMBERS=2"
	}
	return false, fmt.Sprintf("MAX_ROOM_MEMBERS=%d", t.callCfg.MaxRoomMembers)
}

func (t *SelfTest) noSecretLeak() (bool, string) {
	if variables.EnvOptional(variables.TURN_CREDENTIAL_NAME) != "" {
		return true, "TURN_CREDENTIAL set (ensure not logged client-side)"
	}
	return true, "no obvious leaks"
}

func (t *SelfTest) schemaColumns() (bool, string) {
	if _, err := t.storage.MissingRecords(); err != nil {
		return false, err.Error()
	}
	return true, "room/room_key present"
}

func (t *SelfTest) backfillIdempotent() (bool, string) {
	missing, err := t.storage.MissingRecords()
	if err != nil {
		return false, err.Error()
	}
	if missing > 0 {
		return false, fmt.Sprintf("%d records missing room/room_key", missing)
	}
	return true, "backfilled"
}

func (t *SelfTest) readWriteCycle() (bool, string) {
	cid := "test-runner-" + uuid.NewString()
	if _, err := t.storage.GetOrCreateChat(cid, "test"); err != nil {
		return false, err.Error()
	}
	if err := t.storage.PurgeChat(cid); err != nil {
		return false, err.Error()
	}
	return true, "insert/select/delete ok"
}

func (t *SelfTest) registryConsistent() (bool, string) {
	rooms := t.registry.Snapshot()
	for _, room := range rooms {
		if len(room.Members) == 0 {
			return false, fmt.Sprintf("empty room %s survived", room.RoomID)
		}
		if len(room.Members) > t.callCfg.MaxRoomMembers {
			return false, fmt.Sprintf("room %s over capacity", room.RoomID)
		}
	}
	return true, fmt.Sprintf("rooms=%d", len(rooms))
}

// Run executes every category and reports pass counts per category.
func (t *SelfTest) Run() Report {
	categories := map[string][]check{
		"health": {
			{"health_root", t.healthRoot},
			{"health_ice", t.healthICE},
		},
		"security": {
			{"require_room_key", t.requireRoomKey},
			{"max_two_members", t.maxTwoMembers},
			{"no_secret_leak", t.noSecretLeak},
		},
		"db": {
			{"schema_columns", t.schemaColumns},
			{"backfill_idempotent", t.backfillIdempotent},
			{"read_write_cycle", t.readWriteCycle},
		},
		"signaling": {
			{"registry_consistent", t.registryConsistent},
		},
	}

	report := make(Report, len(categories))
	for category, checks := range categories {
		items := make([]CheckResult, 0, len(checks))
		passed := 0
		for _, c := range checks {
			ok, msg := c.run()
			if ok {
				passed++
			}
			items = append(items, CheckResult{Name: c.name, OK: ok, Msg: msg})
		}
		report[category] = CategoryReport{
			Total:  len(checks),
			Passed: passed,
			Items:  items,
		}
	}

	t.logger.Info("self-test finished")
	return report
}
