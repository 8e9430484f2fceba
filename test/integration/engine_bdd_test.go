//go:build integration

package integration

import (
	"context"
	"os"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/app_lock/internal/domain"
	"github.com/eliteGoblin/focusd/app_lock/internal/infra"
	"github.com/eliteGoblin/focusd/app_lock/internal/metrics"
	"github.com/eliteGoblin/focusd/app_lock/internal/prompt"
	"github.com/eliteGoblin/focusd/app_lock/internal/usecase"
	"github.com/eliteGoblin/focusd/app_lock/test/fixtures"
)

const (
	bank     domain.AppID = "com.example.bank"
	notes    domain.AppID = "com.example.notes"
	settings domain.AppID = "com.android.settings"
	self     domain.AppID = "com.applock.secure"
)

// promptUI collects lock targets delivered through the mailbox.
type promptUI struct {
	mu      sync.Mutex
	targets []domain.AppID
}

func (p *promptUI) listen(target domain.AppID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.targets = append(p.targets, target)
	return nil
}

func (p *promptUI) seen() []domain.AppID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.AppID(nil), p.targets...)
}

func fastEngineConfig() usecase.EngineConfig {
	ec := usecase.DefaultEngineConfig()
	ec.Trigger.PromptDelay = 20 * time.Millisecond
	ec.Correlator.SettingsRenderDelay = 30 * time.Millisecond
	return ec
}

func appLockSettingsScreen() *fixtures.FakeNode {
	return fixtures.Node("root", "Apps",
		fixtures.Node("list", "",
			fixtures.Node("row-1", "Calculator"),
			fixtures.Node("row-2", "AppLock Secure"),
		),
	)
}

func wifiSettingsScreen() *fixtures.FakeNode {
	return fixtures.Node("root", "Network & internet",
		fixtures.Node("row-1", "Wi-Fi"),
		fixtures.Node("row-2", "Hotspot"),
	)
}

var _ = Describe("Lock Engine", func() {
	var (
		tmpDir  string
		store   *infra.EncryptedStore
		reader  *fixtures.FakeReader
		home    *fixtures.HomeRecorder
		mailbox *prompt.Mailbox
		ui      *promptUI
		engine  *usecase.Engine
		ctx     context.Context
		bootID  string
	)

	newEngine := func() *usecase.Engine {
		m := metrics.New()
		mailbox = prompt.NewMailbox(m, zap.NewNop())
		e := usecase.NewEngine(fastEngineConfig(), store, fixtures.StaticHost{ID: bootID},
			reader, home, mailbox, m, zap.NewNop())
		Expect(e.Init(ctx)).To(Succeed())
		return e
	}

	open := func(id domain.AppID) {
		engine.HandleForeground(ctx, domain.ForegroundEvent{Package: id, At: time.Now()})
	}

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "applock-integration-*")
		Expect(err).NotTo(HaveOccurred())

		store, err = infra.OpenStore(tmpDir, infra.NewProcessManager())
		Expect(err).NotTo(HaveOccurred())

		ctx = context.Background()
		bootID = "boot-1"
		reader = fixtures.NewFakeReader(nil)
		home = &fixtures.HomeRecorder{}
		ui = &promptUI{}

		Expect(store.SetLockedSet(ctx, []domain.AppID{bank})).To(Succeed())
		engine = newEngine()
		mailbox.Attach(ui.listen)
	})

	AfterEach(func() {
		store.Close()
		os.RemoveAll(tmpDir)
	})

	Describe("opening a locked app", func() {
		It("should go home and show the lock screen for it", func() {
			open(bank)

			Expect(home.Calls()).To(Equal(1))
			Eventually(ui.seen).Should(Equal([]domain.AppID{bank}))
		})

		It("should absorb duplicate notifications within the debounce window", func() {
			open(bank)
			open(bank)
			open(bank)

			Eventually(ui.seen).Should(Equal([]domain.AppID{bank}))
			Consistently(home.Calls, 100*time.Millisecond).Should(Equal(1))
		})

		It("should leave unlocked apps alone", func() {
			open(notes)

			Consistently(ui.seen, 100*time.Millisecond).Should(BeEmpty())
			Expect(home.Calls()).To(BeZero())
		})

		It("should ignore its own foreground notifications", func() {
			open(bank)
			Eventually(ui.seen).Should(HaveLen(1))

			open(self)

			status, err := engine.Status(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(status.Foreground).To(Equal(bank))
			Expect(home.Calls()).To(Equal(1))
		})
	})

	Describe("unlock lifecycle", func() {
		BeforeEach(func() {
			open(bank)
			Eventually(ui.seen).Should(HaveLen(1))
			Expect(engine.UnlockSucceeded(bank)).To(Succeed())
		})

		It("should not lock again while the user stays", func() {
			open(bank)

			Consistently(ui.seen, 100*time.Millisecond).Should(HaveLen(1))
		})

		It("should lock again after the user leaves and comes back", func() {
			open(notes)
			Expect(engine.Allowance().IsAllowed(bank)).To(BeFalse())

			time.Sleep(usecase.DefaultTriggerConfig().DebounceWindow)
			open(bank)

			Eventually(ui.seen).Should(Equal([]domain.AppID{bank, bank}))
		})

		It("should revoke every unlock when the screen turns off", func() {
			engine.ScreenOff()

			Expect(engine.Allowance().IsAllowed(bank)).To(BeFalse())
			allowed, _, err := store.LoadAllowances(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(allowed).To(BeEmpty())
		})

		It("should keep the unlock across an engine restart on the same boot", func() {
			engine = newEngine()

			Expect(engine.Allowance().IsAllowed(bank)).To(BeTrue())
		})

		It("should drop the unlock after a reboot", func() {
			bootID = "boot-2"
			engine = newEngine()

			Expect(engine.Allowance().IsAllowed(bank)).To(BeFalse())
			stored, err := store.BootID(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored).To(Equal("boot-2"))
		})
	})

	Describe("settings protection", func() {
		It("should lock settings while it shows applock's own page", func() {
			reader.SetRoot(appLockSettingsScreen())

			open(settings)

			Eventually(ui.seen).Should(Equal([]domain.AppID{settings}))
			Expect(home.Calls()).To(Equal(1))
		})

		It("should not lock unrelated settings pages", func() {
			reader.SetRoot(wifiSettingsScreen())

			open(settings)

			Consistently(ui.seen, 150*time.Millisecond).Should(BeEmpty())
			Expect(reader.Reads()).To(BeNumerically(">=", 1))
		})

		It("should not lock when protection is off", func() {
			Expect(store.SetProtectSelf(ctx, false)).To(Succeed())
			reader.SetRoot(appLockSettingsScreen())

			open(settings)

			Consistently(ui.seen, 150*time.Millisecond).Should(BeEmpty())
			Expect(reader.Reads()).To(BeZero())
		})

		It("should not lock when settings was left before the scan", func() {
			reader.SetRoot(appLockSettingsScreen())

			open(settings)
			open(notes)

			Consistently(ui.seen, 150*time.Millisecond).Should(BeEmpty())
		})
	})

	Describe("prompt UI not attached", func() {
		It("should hold the latest target until the UI attaches", func() {
			m := metrics.New()
			mailbox = prompt.NewMailbox(m, zap.NewNop())
			engine = usecase.NewEngine(fastEngineConfig(), store, fixtures.StaticHost{ID: bootID},
				reader, home, mailbox, m, zap.NewNop())
			Expect(engine.Init(ctx)).To(Succeed())

			open(bank)
			Eventually(func() bool {
				_, ok := mailbox.Pending()
				return ok
			}).Should(BeTrue())

			late := &promptUI{}
			detach := mailbox.Attach(late.listen)
			defer detach()

			Expect(late.seen()).To(Equal([]domain.AppID{bank}))
			_, ok := mailbox.Pending()
			Expect(ok).To(BeFalse())
		})
	})
})
