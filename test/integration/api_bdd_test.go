//go:build integration

package integration

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/app_lock/internal/client"
	"github.com/eliteGoblin/focusd/app_lock/internal/domain"
	"github.com/eliteGoblin/focusd/app_lock/internal/infra"
	"github.com/eliteGoblin/focusd/app_lock/internal/metrics"
	"github.com/eliteGoblin/focusd/app_lock/internal/prompt"
	"github.com/eliteGoblin/focusd/app_lock/internal/server"
	"github.com/eliteGoblin/focusd/app_lock/internal/usecase"
	"github.com/eliteGoblin/focusd/app_lock/test/fixtures"
)

var _ = Describe("Control API", func() {
	var (
		tmpDir string
		store  *infra.EncryptedStore
		engine *usecase.Engine
		srv    *httptest.Server
		api    *client.Client
		token  string
		ctx    context.Context
	)

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)

		var err error
		tmpDir, err = os.MkdirTemp("", "applock-api-*")
		Expect(err).NotTo(HaveOccurred())

		store, err = infra.OpenStore(tmpDir, infra.NewProcessManager())
		Expect(err).NotTo(HaveOccurred())

		ctx = context.Background()
		m := metrics.New()
		mailbox := prompt.NewMailbox(m, zap.NewNop())
		engine = usecase.NewEngine(fastEngineConfig(), store, fixtures.StaticHost{ID: "boot-1"},
			fixtures.NewFakeReader(nil), &fixtures.HomeRecorder{}, mailbox, m, zap.NewNop())
		Expect(engine.Init(ctx)).To(Succeed())

		token, err = infra.EnsureAPIToken(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		s := server.New("127.0.0.1:0", token, engine, store, mailbox, m, zap.NewNop())
		srv = httptest.NewServer(s.Handler())
		api = client.New(strings.TrimPrefix(srv.URL, "http://"), token)
	})

	AfterEach(func() {
		srv.Close()
		store.Close()
		os.RemoveAll(tmpDir)
	})

	It("should persist the locked set in the encrypted store", func() {
		locked, err := api.AddLocked(ctx, bank, notes)
		Expect(err).NotTo(HaveOccurred())
		Expect(locked).To(ConsistOf(bank, notes))

		stored, err := store.LockedSet(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(stored).To(ConsistOf(bank, notes))
	})

	It("should deliver lock events to the prompt UI and accept unlocks", func() {
		_, err := api.AddLocked(ctx, bank)
		Expect(err).NotTo(HaveOccurred())

		wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/lock-events"
		header := http.Header{}
		header.Set("Authorization", "Bearer "+token)
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
		Expect(err).NotTo(HaveOccurred())
		defer conn.Close()

		Eventually(func() bool {
			status, err := api.Status(ctx)
			return err == nil && status.PromptListening
		}).Should(BeTrue())

		Expect(api.Foreground(ctx, bank)).To(Succeed())

		Expect(conn.SetReadDeadline(time.Now().Add(2 * time.Second))).To(Succeed())
		var ev server.LockEvent
		Expect(conn.ReadJSON(&ev)).To(Succeed())
		Expect(ev.Type).To(Equal("lock"))
		Expect(ev.Package).To(Equal(bank))

		Expect(conn.WriteJSON(server.ClientMessage{Type: "unlock", Package: bank})).To(Succeed())
		Expect(conn.ReadJSON(&ev)).To(Succeed())
		Expect(ev.Type).To(Equal("unlocked"))

		status, err := api.Status(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(status.Allowed).To(ContainElement(bank))
	})

	It("should refuse unlocks from a web page", func() {
		req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/unlock", strings.NewReader(`{"package":"com.example.bank"}`))
		Expect(err).NotTo(HaveOccurred())
		req.Header.Set("Content-Type", "text/plain")
		req.Header.Set("Origin", "https://attacker.example")

		resp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusForbidden))

		Expect(engine.Allowance().IsAllowed(bank)).To(BeFalse())
	})

	It("should refuse clients without the install token", func() {
		stranger := client.New(strings.TrimPrefix(srv.URL, "http://"), "")
		Expect(stranger.Unlock(ctx, bank)).NotTo(Succeed())
		Expect(engine.Allowance().IsAllowed(bank)).To(BeFalse())
	})

	It("should revoke unlocks on screen off", func() {
		Expect(api.Unlock(ctx, notes)).To(Succeed())
		Expect(api.ScreenOff(ctx)).To(Succeed())

		status, err := api.Status(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(status.Allowed).To(BeEmpty())
	})

	It("should toggle settings protection", func() {
		enabled, err := api.ProtectSettings(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(enabled).To(BeTrue())

		Expect(api.SetProtectSettings(ctx, false)).To(Succeed())

		enabled, err = store.ProtectSelf(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(enabled).To(BeFalse())
	})
})

var _ = Describe("Encrypted store", func() {
	It("should not leak package names in plaintext", func() {
		tmpDir, err := os.MkdirTemp("", "applock-store-*")
		Expect(err).NotTo(HaveOccurred())
		defer os.RemoveAll(tmpDir)

		store, err := infra.OpenStore(tmpDir, infra.NewProcessManager())
		Expect(err).NotTo(HaveOccurred())
		Expect(store.SetLockedSet(context.Background(), []domain.AppID{"com.secret.diary"})).To(Succeed())
		path := store.Path()
		Expect(store.Close()).To(Succeed())

		raw, err := os.ReadFile(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(raw)).NotTo(ContainSubstring("com.secret.diary"))
	})
})
