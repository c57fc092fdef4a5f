// Package discovery announces the control API over mDNS so UIs can find
// the device without configuration.
package discovery

import (
	"net"
	"os"
	"time"

	"github.com/hashicorp/mdns"

	"github.com/pixkit/camcast/internal/api"
	"github.com/pixkit/camcast/internal/app"
)

const service = "_camcast-api._tcp"

func Init() {
	var cfg struct {
		Mod struct {
			Disable bool   `yaml:"disable"`
			Name    string `yaml:"name"`
		} `yaml:"discovery"`
	}

	app.LoadConfig(&cfg)

	log := app.GetLogger("discovery")

	if cfg.Mod.Disable {
		return
	}

	name := cfg.Mod.Name
	if name == "" {
		name, _ = os.Hostname()
	}
	if name == "" {
		name = "camcast"
	}

	// wait for the api listener to pick its port
	time.AfterFunc(time.Second, func() {
		port := api.Port()
		if port == 0 {
			return
		}

		txt := []string{"app=camcast", "version=" + app.Version}

		// hostName needs the `.local.` tail, ips must be set manually
		zone, err := mdns.NewMDNSService(name, service, "", name+".local.", port, localIPs(), txt)
		if err != nil {
			log.Warn().Err(err).Msg("[discovery] service")
			return
		}

		if _, err = mdns.NewServer(&mdns.Config{Zone: zone}); err != nil {
			log.Warn().Err(err).Msg("[discovery] server")
			return
		}

		log.Info().Str("name", name).Str("service", service).Msg("[discovery] announce")
	})
}

func localIPs() []net.IP {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil
	}

	var ips []net.IP
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			switch addr := addr.(type) {
			case *net.IPNet:
				ips = append(ips, addr.IP)
			case *net.IPAddr:
				ips = append(ips, addr.IP)
			}
		}
	}
	return ips
}
