// Package process provides generic subprocess lifecycle management.
//
// The sensor node uses it to supervise wpa_supplicant, the daemon that owns
// WiFi association on a Linux host. The radio adapter starts the supplicant
// through a Manager and relies on it to bring the daemon back after a crash.
//
// Features:
//   - Start/stop subprocess with graceful shutdown (SIGTERM, then SIGKILL)
//   - Automatic restart on failure with exponential backoff
//   - Restart counter reset after a stable run
//   - Permanent failures (missing binary) stop the restart loop
//   - Line-based log capture from subprocess stdout/stderr
//
// Example usage:
//
//	mgr := process.NewManager(process.Config{
//	    Name:             "wpa_supplicant",
//	    Binary:           "/sbin/wpa_supplicant",
//	    Args:             []string{"-i", "wlan0", "-c", "/run/glsensor/wpa_supplicant.conf"},
//	    RestartOnFailure: true,
//	    RestartDelay:     5 * time.Second,
//	})
//
//	if err := mgr.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer mgr.Stop()
package process
