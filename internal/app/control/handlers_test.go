package control

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"raider/internal/config"
	"raider/internal/core/catalog"
	"raider/internal/core/loot"
	"raider/internal/core/model"
	"raider/internal/core/netkb"
	"raider/internal/core/orchestrator"
	"raider/internal/core/policy"
	"raider/internal/core/scanner/alive"
	"raider/internal/core/scanner/brute"
	"raider/internal/core/scanner/vuln"
	"raider/internal/core/steal"
)

type stubDiscoverer struct {
	known map[string]alive.DiscoveredTarget
	gate  chan struct{} // 非 nil 时 Sweep 阻塞到通道关闭
}

func (s *stubDiscoverer) Sweep(ctx context.Context) ([]alive.DiscoveredTarget, error) {
	if s.gate != nil {
		<-s.gate
	}
	return nil, nil
}

func (s *stubDiscoverer) ProbeOne(ctx context.Context, ip string) (*alive.DiscoveredTarget, bool) {
	d, ok := s.known[ip]
	if !ok {
		return nil, false
	}
	return &d, true
}

type stubBrute struct{}

func (stubBrute) Crack(ctx context.Context, target *model.Target, protocol string, port int) brute.TaskResult {
	return brute.TaskResult{Outcome: model.OutcomeNoCreds, Attempts: 1}
}

type stubVuln struct{}

func (stubVuln) Scan(ctx context.Context, target *model.Target, ports []int) (model.OutcomeKind, *vuln.Report, error) {
	return model.OutcomeSuccess, &vuln.Report{}, nil
}

func newTestRouter(t *testing.T) (*Router, *orchestrator.Orchestrator) {
	t.Helper()
	r, o, _ := newTestRouterDisc(t)
	return r, o
}

func newTestRouterDisc(t *testing.T) (*Router, *orchestrator.Orchestrator, *stubDiscoverer) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dataDir := t.TempDir()
	cfg := &config.Config{
		DataDir: dataDir,
		Server:  &config.ServerConfig{Mode: gin.TestMode},
		Scheduler: &config.SchedulerConfig{
			ScanInterval:     time.Hour,
			AttackOrder:      "per_host",
			MaxFailedRetries: 3,
		},
		Network: &config.NetworkConfig{},
		Brute:   &config.BruteConfig{WorkerThreads: 2, QueueTimeout: time.Minute},
	}

	cat := catalog.Default()
	store, err := netkb.NewStore(dataDir, cat.OutcomeColumns())
	if err != nil {
		t.Fatal(err)
	}
	reg, err := netkb.NewRegistry(store)
	if err != nil {
		t.Fatal(err)
	}
	creds, err := loot.NewCredStore(dataDir)
	if err != nil {
		t.Fatal(err)
	}
	files, err := loot.NewFileStore(dataDir)
	if err != nil {
		t.Fatal(err)
	}
	vulns, err := vuln.NewStore(dataDir)
	if err != nil {
		t.Fatal(err)
	}

	disc := &stubDiscoverer{known: map[string]alive.DiscoveredTarget{
		"10.0.0.8": {Host: model.DiscoveredHost{IP: "10.0.0.8", MAC: "aa:bb:cc:00:00:08", Hostname: "nas"}, Ports: []int{21, 445}},
	}}
	o := orchestrator.New(cfg, orchestrator.NewRunState(false), reg, cat,
		policy.NewBlacklist(cfg.Network, ""), disc, stubBrute{}, stubVuln{},
		creds, steal.NewRegistry())

	logFile := filepath.Join(dataDir, "raider.log")
	if err := os.WriteFile(logFile, []byte("old entries\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	r := NewRouter(cfg.Server, Deps{Orchestrator: o, Creds: creds, Files: files, Vulns: vulns, LogFile: logFile})
	return r, o, disc
}

func doRequest(r *Router, method, path, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.Engine().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("invalid json response %q: %v", w.Body.String(), err)
	}
	return out
}

func TestHealthAndPing(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doRequest(r, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d", w.Code)
	}
	if got := decode(t, w)["status"]; got != "healthy" {
		t.Errorf("health status field = %v", got)
	}

	if w := doRequest(r, http.MethodGet, "/ping", ""); w.Code != http.StatusOK {
		t.Errorf("ping status = %d", w.Code)
	}
}

func TestModeRoundTrip(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doRequest(r, http.MethodGet, "/api/v1/mode", "")
	if got := decode(t, w)["mode"]; got != "autonomous" {
		t.Errorf("initial mode = %v, want autonomous", got)
	}

	w = doRequest(r, http.MethodPost, "/api/v1/mode", `{"mode":"manual"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("set mode status = %d: %s", w.Code, w.Body.String())
	}
	w = doRequest(r, http.MethodGet, "/api/v1/mode", "")
	if got := decode(t, w)["mode"]; got != "manual" {
		t.Errorf("mode after switch = %v, want manual", got)
	}

	if w := doRequest(r, http.MethodPost, "/api/v1/mode", `{"mode":"bogus"}`); w.Code != http.StatusBadRequest {
		t.Errorf("invalid mode status = %d, want 400", w.Code)
	}
	if w := doRequest(r, http.MethodPost, "/api/v1/mode", `{}`); w.Code != http.StatusBadRequest {
		t.Errorf("missing mode status = %d, want 400", w.Code)
	}
}

func TestAddTarget(t *testing.T) {
	r, o := newTestRouter(t)

	// 可达目标: 探测补全 MAC/主机名/端口
	w := doRequest(r, http.MethodPost, "/api/v1/targets", `{"ip":"10.0.0.8"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("add target status = %d: %s", w.Code, w.Body.String())
	}
	resp := decode(t, w)
	if resp["mac"] != "aa:bb:cc:00:00:08" || resp["alive"] != true {
		t.Errorf("reachable target not enriched: %v", resp)
	}

	// 不可达目标: 离线入库
	w = doRequest(r, http.MethodPost, "/api/v1/targets", `{"ip":"10.0.0.99"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("add offline target status = %d", w.Code)
	}
	if resp := decode(t, w); resp["alive"] != false || resp["mac"] != model.ManualMAC {
		t.Errorf("offline target fields: %v", resp)
	}

	if o.Registry().Len() != 2 {
		t.Errorf("registry rows = %d, want 2", o.Registry().Len())
	}

	// 非法输入
	if w := doRequest(r, http.MethodPost, "/api/v1/targets", `{}`); w.Code != http.StatusBadRequest {
		t.Errorf("empty body status = %d, want 400", w.Code)
	}
	if w := doRequest(r, http.MethodPost, "/api/v1/targets", `{"ip":"not-an-ip"}`); w.Code != http.StatusBadRequest {
		t.Errorf("bad ip status = %d, want 400", w.Code)
	}
}

func TestListTargetsSnapshot(t *testing.T) {
	r, o := newTestRouter(t)
	target := o.Registry().Upsert(model.DiscoveredHost{IP: "10.0.0.5", MAC: "aa:bb:cc:00:00:05"}, []int{22})
	o.Registry().RecordOutcome(target.Key(), "brute_ssh", model.OutcomeNoCreds, time.Now())

	w := doRequest(r, http.MethodGet, "/api/v1/targets", "")
	if w.Code != http.StatusOK {
		t.Fatalf("list targets status = %d", w.Code)
	}
	resp := decode(t, w)
	if resp["count"] != float64(1) {
		t.Fatalf("count = %v, want 1", resp["count"])
	}
	row := resp["targets"].([]interface{})[0].(map[string]interface{})
	if row["ip"] != "10.0.0.5" {
		t.Errorf("row ip = %v", row["ip"])
	}
	outcomes := row["outcomes"].(map[string]interface{})
	if enc, ok := outcomes["brute_ssh"].(string); !ok || !strings.HasPrefix(enc, "no_creds_") {
		t.Errorf("brute_ssh outcome = %v, want no_creds_<ts>", outcomes["brute_ssh"])
	}
}

func TestManualAttackSync(t *testing.T) {
	r, o := newTestRouter(t)
	target := o.Registry().Upsert(model.DiscoveredHost{IP: "10.0.0.5", MAC: "aa:bb:cc:00:00:05"}, []int{22})

	w := doRequest(r, http.MethodPost, "/api/v1/attack",
		`{"action_id":"brute_ssh","target_key":"`+target.Key()+`"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("sync attack status = %d: %s", w.Code, w.Body.String())
	}
	resp := decode(t, w)
	if enc, ok := resp["outcome"].(string); !ok || !strings.HasPrefix(enc, "no_creds_") {
		t.Errorf("outcome = %v, want no_creds_<ts>", resp["outcome"])
	}

	// 未知目标
	w = doRequest(r, http.MethodPost, "/api/v1/attack", `{"action_id":"brute_ssh","target_key":"10.9.9.9"}`)
	if w.Code != http.StatusConflict {
		t.Errorf("unknown target status = %d, want 409", w.Code)
	}
}

func TestAsyncAttackSingleAdmission(t *testing.T) {
	r, o, disc := newTestRouterDisc(t)
	gate := make(chan struct{})
	disc.gate = gate

	w := doRequest(r, http.MethodPost, "/api/v1/attack", `{"action_id":"network_scan"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("first async attack status = %d: %s", w.Code, w.Body.String())
	}

	// 名额在请求协程里同步占用，第一个还卡在扫描里时重复请求立刻 409
	w = doRequest(r, http.MethodPost, "/api/v1/attack", `{"action_id":"network_scan"}`)
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate async attack status = %d, want 409", w.Code)
	}

	close(gate)
	deadline := time.After(2 * time.Second)
	for o.State().Manual() != nil {
		select {
		case <-deadline:
			t.Fatal("async attack never reached a terminal state")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}

	// 终态后名额释放，新的异步动作可以进入
	if w := doRequest(r, http.MethodPost, "/api/v1/attack", `{"action_id":"network_scan"}`); w.Code != http.StatusAccepted {
		t.Errorf("attack after release status = %d, want 202", w.Code)
	}
}

func TestStopAttackWithoutInFlight(t *testing.T) {
	r, _ := newTestRouter(t)
	if w := doRequest(r, http.MethodDelete, "/api/v1/attack", ""); w.Code != http.StatusNotFound {
		t.Errorf("stop without in-flight status = %d, want 404", w.Code)
	}
}

func TestCredentialEndpoints(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doRequest(r, http.MethodGet, "/api/v1/credentials", "")
	if w.Code != http.StatusOK || decode(t, w)["count"] != float64(0) {
		t.Errorf("empty credential list: %d %s", w.Code, w.Body.String())
	}

	if err := r.deps.Creds.Append(model.CredentialRecord{
		Protocol: "ssh", IP: "10.0.0.5", MAC: "aa:bb:cc:00:00:05",
		Username: "root", Password: "toor", FoundAt: time.Now(),
	}); err != nil {
		t.Fatal(err)
	}

	w = doRequest(r, http.MethodGet, "/api/v1/credentials?protocol=ssh", "")
	if decode(t, w)["count"] != float64(1) {
		t.Errorf("ssh credential count: %s", w.Body.String())
	}

	if w := doRequest(r, http.MethodDelete, "/api/v1/credentials", ""); w.Code != http.StatusOK {
		t.Fatalf("clear credentials status = %d", w.Code)
	}
	w = doRequest(r, http.MethodGet, "/api/v1/credentials", "")
	if decode(t, w)["count"] != float64(0) {
		t.Errorf("credentials after clear: %s", w.Body.String())
	}
}

func TestVulnEndpoints(t *testing.T) {
	r, _ := newTestRouter(t)

	if err := r.deps.Vulns.UpdateSummary("10.0.0.5", "web", "aa:bb:cc:00:00:05", "80", "CVE-2017-0143"); err != nil {
		t.Fatal(err)
	}
	if err := r.deps.Vulns.SaveDetails("aa-bb-cc-00-00-05", "10.0.0.5", []model.VulnFinding{
		{IP: "10.0.0.5", Port: "80/tcp", Script: "http-vuln-check", Title: "x", State: model.StateVulnerable},
	}); err != nil {
		t.Fatal(err)
	}

	w := doRequest(r, http.MethodGet, "/api/v1/vulns", "")
	if w.Code != http.StatusOK || decode(t, w)["count"] != float64(1) {
		t.Errorf("vuln summaries: %d %s", w.Code, w.Body.String())
	}

	w = doRequest(r, http.MethodGet, "/api/v1/vulns/10.0.0.5", "")
	if w.Code != http.StatusOK || decode(t, w)["count"] != float64(1) {
		t.Errorf("vuln details: %d %s", w.Code, w.Body.String())
	}
}

func TestClearAll(t *testing.T) {
	r, o := newTestRouter(t)
	o.Registry().Upsert(model.DiscoveredHost{IP: "10.0.0.5", MAC: "aa:bb:cc:00:00:05"}, []int{22})

	if w := doRequest(r, http.MethodDelete, "/api/v1/data", ""); w.Code != http.StatusOK {
		t.Fatalf("clear all status = %d: %s", w.Code, w.Body.String())
	}
	if o.Registry().Len() != 0 {
		t.Errorf("registry rows after clear = %d, want 0", o.Registry().Len())
	}
}

func TestClearLogs(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doRequest(r, http.MethodDelete, "/api/v1/logs", "")
	if w.Code != http.StatusOK {
		t.Fatalf("clear logs status = %d: %s", w.Code, w.Body.String())
	}
	info, err := os.Stat(r.deps.LogFile)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() != 0 {
		t.Errorf("log file size = %d after clear, want 0", info.Size())
	}

	// 未配置文件日志的部署上该接口报 404
	r.deps.LogFile = ""
	w = doRequest(r, http.MethodDelete, "/api/v1/logs", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("clear logs without file logging = %d, want 404", w.Code)
	}
}
