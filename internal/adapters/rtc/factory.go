package rtc

import (
	"fmt"
	"sync"
	"time"

	"github.com/pion/ice/v4"
	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/intervalpli"
	"github.com/pion/transport/v3/vnet"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/loopcall/internal/core"
	"github.com/dkeye/loopcall/internal/domain"
)

const virtualCIDR = "10.10.0.0/24"

var virtualIPs = [2]string{"10.10.0.1", "10.10.0.2"}

type Options struct {
	// ICEServers are STUN/TURN urls. Empty means host candidates only.
	ICEServers []string
	// PLIInterval asks remote video senders for a keyframe this often; zero
	// disables the interceptor.
	PLIInterval time.Duration
	// VirtualNetwork puts both sides on an in-process vnet router instead of
	// the host's interfaces.
	VirtualNetwork bool
}

// Factory builds pion peer connections that share one media and
// interceptor setup per side.
type Factory struct {
	cfg  webrtc.Configuration
	apis [2]*webrtc.API

	router *vnet.Router

	mu    sync.Mutex
	conns map[domain.Side]*Connection
}

var _ core.PeerFactory = (*Factory)(nil)

func DefaultWebRTCConfig(iceServers []string) webrtc.Configuration {
	cfg := webrtc.Configuration{}
	if len(iceServers) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: iceServers}}
	}
	return cfg
}

func NewFactory(opts Options) (*Factory, error) {
	f := &Factory{
		cfg:   DefaultWebRTCConfig(opts.ICEServers),
		conns: make(map[domain.Side]*Connection),
	}

	var nets [2]*vnet.Net
	if opts.VirtualNetwork {
		router, err := vnet.NewRouter(&vnet.RouterConfig{
			CIDR:          virtualCIDR,
			LoggerFactory: LoggerFactory{},
		})
		if err != nil {
			return nil, fmt.Errorf("create vnet router: %w", err)
		}
		for i, ip := range virtualIPs {
			n, err := vnet.NewNet(&vnet.NetConfig{StaticIPs: []string{ip}})
			if err != nil {
				return nil, fmt.Errorf("create vnet net %s: %w", ip, err)
			}
			if err := router.AddNet(n); err != nil {
				return nil, fmt.Errorf("attach vnet net %s: %w", ip, err)
			}
			nets[i] = n
		}
		if err := router.Start(); err != nil {
			return nil, fmt.Errorf("start vnet router: %w", err)
		}
		f.router = router
	}

	for _, side := range []domain.Side{domain.SideLocal, domain.SideRemote} {
		api, err := newAPI(opts, nets[side])
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		f.apis[side] = api
	}

	log.Info().
		Str("module", "webrtc").
		Bool("vnet", opts.VirtualNetwork).
		Dur("pli_interval", opts.PLIInterval).
		Int("ice_servers", len(opts.ICEServers)).
		Msg("pion factory ready")
	return f, nil
}

func newAPI(opts Options, net *vnet.Net) (*webrtc.API, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register default codecs: %w", err)
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, registry); err != nil {
		return nil, fmt.Errorf("register default interceptors: %w", err)
	}
	if opts.PLIInterval > 0 {
		pli, err := intervalpli.NewReceiverInterceptor(intervalpli.GeneratorInterval(opts.PLIInterval))
		if err != nil {
			return nil, fmt.Errorf("create pli interceptor: %w", err)
		}
		registry.Add(pli)
	}

	settings := webrtc.SettingEngine{LoggerFactory: LoggerFactory{}}
	if net != nil {
		settings.SetNet(net)
		settings.SetICEMulticastDNSMode(ice.MulticastDNSModeDisabled)
	}

	return webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(registry),
		webrtc.WithSettingEngine(settings),
	), nil
}

func (f *Factory) NewPeerConnection(side domain.Side) (core.PeerConnection, error) {
	pc, err := f.apis[side].NewPeerConnection(f.cfg)
	if err != nil {
		return nil, err
	}
	c := newConnection(side, pc)
	f.mu.Lock()
	f.conns[side] = c
	f.mu.Unlock()
	return c, nil
}

// Last returns the most recent connection built for side.
func (f *Factory) Last(side domain.Side) *Connection {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conns[side]
}

// Close stops the virtual network, if any. Connections are closed by their
// owners.
func (f *Factory) Close() error {
	if f.router == nil {
		return nil
	}
	err := f.router.Stop()
	f.router = nil
	return err
}
