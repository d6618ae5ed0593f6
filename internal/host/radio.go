package host

import (
	"bytes"
	"context"
	"crypto/sha1" //nolint:gosec // WPA2-PSK key derivation is defined over SHA-1
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/crypto/pbkdf2"

	"github.com/nerrad567/gray-logic-sensor/internal/link"
	"github.com/nerrad567/gray-logic-sensor/internal/process"
	"github.com/nerrad567/gray-logic-sensor/internal/scheduler"
)

// Radio defaults.
const (
	DefaultSysfsNetRoot       = "/sys/class/net"
	DefaultAssociationTimeout = 20 * time.Second
	DefaultOperstatePoll      = 250 * time.Millisecond
	DefaultSupplicantDriver   = "nl80211"
	DefaultCtrlInterface      = "/run/wpa_supplicant"
)

// operstateUp is the kernel operstate of an interface that carries traffic.
const operstateUp = "up"

// RadioConfig configures a Radio.
type RadioConfig struct {
	// Interface is the wireless interface, e.g. "wlan0".
	Interface string

	// ConfigPath is where the wpa_supplicant configuration is written.
	ConfigPath string

	// CtrlInterface is the supplicant control socket directory.
	CtrlInterface string

	// Managed runs wpa_supplicant under a process.Manager. When false the
	// supplicant is expected to be running already.
	Managed bool

	// Binary is the wpa_supplicant executable.
	Binary string

	// Driver is the supplicant driver backend.
	Driver string

	// RestartDelay is the first restart delay for a crashed supplicant.
	RestartDelay time.Duration

	// ControlBinary is wpa_cli. When set, Connect asks the supplicant to
	// reassociate before waiting for the link.
	ControlBinary string

	// AssociationTimeout bounds one Connect.
	AssociationTimeout time.Duration

	// SysfsRoot is the directory holding per-interface operstate files.
	SysfsRoot string

	// PollInterval is how often operstate is read.
	PollInterval time.Duration
}

// Radio is a station-mode link on a Linux host. It implements link.Radio.
type Radio struct {
	cfg    RadioConfig
	logger Logger

	started      atomic.Bool
	connected    atomic.Bool
	disconnected *scheduler.Signal

	mu         sync.Mutex
	configured bool
	supplicant *process.Manager
	watching   bool

	stop     chan struct{}
	stopOnce sync.Once
}

var _ link.Radio = (*Radio)(nil)

// NewRadio creates a Radio. Zero fields take the package defaults.
func NewRadio(cfg RadioConfig) (*Radio, error) {
	if cfg.Interface == "" {
		return nil, ErrInterfaceRequired
	}
	if cfg.ConfigPath == "" {
		cfg.ConfigPath = filepath.Join(os.TempDir(), "glsensor-wpa_supplicant.conf")
	}
	if cfg.CtrlInterface == "" {
		cfg.CtrlInterface = DefaultCtrlInterface
	}
	if cfg.Driver == "" {
		cfg.Driver = DefaultSupplicantDriver
	}
	if cfg.AssociationTimeout <= 0 {
		cfg.AssociationTimeout = DefaultAssociationTimeout
	}
	if cfg.SysfsRoot == "" {
		cfg.SysfsRoot = DefaultSysfsNetRoot
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultOperstatePoll
	}

	return &Radio{
		cfg:          cfg,
		logger:       noopLogger{},
		disconnected: scheduler.NewSignal("wifi-disconnected"),
		stop:         make(chan struct{}),
	}, nil
}

// SetLogger sets the logger for the radio and its supplicant supervisor.
func (r *Radio) SetLogger(logger Logger) {
	r.logger = logger
}

// Configure writes the supplicant configuration for creds.
func (r *Radio) Configure(creds link.Credentials) error {
	if err := writeFileAtomic(r.cfg.ConfigPath, supplicantConfig(creds, r.cfg.CtrlInterface)); err != nil {
		return fmt.Errorf("writing wpa_supplicant config: %w", err)
	}

	r.mu.Lock()
	r.configured = true
	r.mu.Unlock()

	r.logger.Debug("wpa_supplicant config written",
		"path", r.cfg.ConfigPath,
		"ssid", creds.SSID,
		"open", creds.Open(),
	)
	return nil
}

// IsStarted reports whether the radio subsystem is running.
func (r *Radio) IsStarted() bool {
	return r.started.Load()
}

// IsConnected reports whether the station is associated.
func (r *Radio) IsConnected() bool {
	return r.connected.Load()
}

// Disconnected fires when the interface drops out of operstate "up" after
// a successful Connect.
func (r *Radio) Disconnected() *scheduler.Signal {
	return r.disconnected
}

// Start launches the supplicant (when managed) and the operstate watcher.
func (r *Radio) Start(ctx context.Context) *scheduler.Future[struct{}] {
	return scheduler.Go(ctx, "radio-start", func(ctx context.Context) (struct{}, error) {
		r.mu.Lock()
		configured := r.configured
		r.mu.Unlock()
		if !configured {
			return struct{}{}, ErrNotConfigured
		}

		if r.cfg.Managed {
			if err := r.startSupplicant(ctx); err != nil {
				return struct{}{}, err
			}
		}

		if _, err := r.operstate(); err != nil {
			r.stopSupplicant()
			return struct{}{}, fmt.Errorf("reading %s operstate: %w", r.cfg.Interface, err)
		}

		r.startWatcher()
		r.started.Store(true)
		r.logger.Info("radio started", "interface", r.cfg.Interface, "managed", r.cfg.Managed)
		return struct{}{}, nil
	})
}

// Connect waits for the interface to come up, optionally asking the
// supplicant to reassociate first.
func (r *Radio) Connect(ctx context.Context) *scheduler.Future[struct{}] {
	return scheduler.Go(ctx, "radio-connect", func(ctx context.Context) (struct{}, error) {
		if r.cfg.ControlBinary != "" {
			if err := r.requestReconnect(ctx); err != nil {
				return struct{}{}, err
			}
		}

		actx, cancel := context.WithTimeout(ctx, r.cfg.AssociationTimeout)
		defer cancel()

		ticker := time.NewTicker(r.cfg.PollInterval)
		defer ticker.Stop()

		var state string
		for {
			s, err := r.operstate()
			if err == nil {
				state = s
			}
			if state == operstateUp {
				r.connected.Store(true)
				return struct{}{}, nil
			}

			select {
			case <-actx.Done():
				if ctx.Err() != nil {
					return struct{}{}, ctx.Err()
				}
				return struct{}{}, fmt.Errorf("%w: %s is %q after %v",
					ErrAssociationTimeout, r.cfg.Interface, state, r.cfg.AssociationTimeout)
			case <-ticker.C:
			}
		}
	})
}

// Close stops the watcher and the supervised supplicant.
func (r *Radio) Close() error {
	r.stopOnce.Do(func() { close(r.stop) })
	r.stopSupplicant()
	r.started.Store(false)
	r.connected.Store(false)
	return nil
}

func (r *Radio) startSupplicant(ctx context.Context) error {
	r.mu.Lock()
	if r.supplicant != nil && r.supplicant.IsRunning() {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	cfg := process.DefaultConfig("wpa_supplicant", r.cfg.Binary, []string{
		"-i", r.cfg.Interface,
		"-c", r.cfg.ConfigPath,
		"-D", r.cfg.Driver,
	})
	if r.cfg.RestartDelay > 0 {
		cfg.RestartDelay = r.cfg.RestartDelay
	}
	// Unlimited restarts: the link manager cannot recover a dead supplicant.
	cfg.MaxRestartAttempts = 0
	cfg.OnExit = func(err error) {
		if err != nil {
			r.markDown("supplicant exited")
		}
	}

	mgr := process.NewManager(cfg)
	mgr.SetLogger(r.logger)
	if err := mgr.Start(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrSupplicantExited, err)
	}

	r.mu.Lock()
	r.supplicant = mgr
	r.mu.Unlock()

	go r.superviseSupplicant(mgr)
	return nil
}

// superviseSupplicant marks the radio stopped when the process manager gives
// up, so the link manager starts it again on its next pass.
func (r *Radio) superviseSupplicant(mgr *process.Manager) {
	<-mgr.Done()
	if mgr.Status() != process.StatusFailed {
		return
	}
	r.logger.Error("wpa_supplicant supervision ended", "error", mgr.LastError())
	r.started.Store(false)
	r.markDown("supplicant failed")
}

func (r *Radio) stopSupplicant() {
	r.mu.Lock()
	mgr := r.supplicant
	r.supplicant = nil
	r.mu.Unlock()

	if mgr == nil {
		return
	}
	if err := mgr.Stop(); err != nil {
		r.logger.Warn("stopping wpa_supplicant", "error", err)
	}
}

func (r *Radio) requestReconnect(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, r.cfg.ControlBinary, //nolint:gosec // Binary path comes from validated config
		"-p", r.cfg.CtrlInterface,
		"-i", r.cfg.Interface,
		"reconnect",
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("wpa_cli reconnect: %w: %s", err, bytes.TrimSpace(out))
	}
	return nil
}

// startWatcher runs the operstate watcher once per Radio.
func (r *Radio) startWatcher() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.watching {
		return
	}
	r.watching = true
	go r.watch()
}

func (r *Radio) watch() {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
		}

		state, err := r.operstate()
		if err != nil {
			r.markDown("operstate unreadable")
			continue
		}
		if state != operstateUp {
			r.markDown("operstate " + state)
		}
	}
}

// markDown fires the disconnect signal on the connected to not-connected edge.
func (r *Radio) markDown(reason string) {
	if r.connected.CompareAndSwap(true, false) {
		r.logger.Warn("wifi link lost", "interface", r.cfg.Interface, "reason", reason)
		r.disconnected.Fire()
	}
}

func (r *Radio) operstate() (string, error) {
	data, err := os.ReadFile(filepath.Join(r.cfg.SysfsRoot, r.cfg.Interface, "operstate"))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// supplicantConfig renders a single-network wpa_supplicant configuration.
// The SSID is hex encoded and the passphrase is stored as the derived PSK.
func supplicantConfig(creds link.Credentials, ctrlInterface string) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "ctrl_interface=DIR=%s\n", ctrlInterface)
	b.WriteString("update_config=0\n")
	b.WriteString("ap_scan=1\n\n")
	b.WriteString("network={\n")
	fmt.Fprintf(&b, "\tssid=%s\n", hex.EncodeToString([]byte(creds.SSID)))
	b.WriteString("\tscan_ssid=1\n")
	if creds.Open() {
		b.WriteString("\tkey_mgmt=NONE\n")
	} else {
		b.WriteString("\tkey_mgmt=WPA-PSK\n")
		fmt.Fprintf(&b, "\tpsk=%s\n", hex.EncodeToString(derivePSK(creds.Passphrase, creds.SSID)))
	}
	b.WriteString("}\n")
	return b.Bytes()
}

// derivePSK computes the 256-bit WPA2 pre-shared key (IEEE 802.11i H.4).
func derivePSK(passphrase, ssid string) []byte {
	return pbkdf2.Key([]byte(passphrase), []byte(ssid), 4096, 32, sha1.New)
}

// writeFileAtomic writes data with mode 0600 via a temp file and rename.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".wpa-*.conf")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
