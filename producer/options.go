// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package producer

import (
	"crypto/tls"
	"time"

	"github.com/absmach/rocketmq/namesrv"
	"github.com/absmach/rocketmq/protocol"
	"github.com/absmach/rocketmq/remoting"
)

// Default values.
const (
	DefaultGroupName            = "DEFAULT_PRODUCER"
	DefaultSendTimeout          = 3 * time.Second
	DefaultRetries              = 2
	DefaultCompressOver         = 4 * 1024
	DefaultCompressLevel        = 5
	DefaultMaxMessageSize       = 4 * 1024 * 1024
	DefaultHeartbeatInterval    = 30 * time.Second
	DefaultRouteRefreshInterval = 30 * time.Second
	DefaultBrokerCooldown       = 30 * time.Second
	DefaultTopicQueueNums       = 4
	// DefaultCreateTopicKey is the system topic whose route seeds
	// auto-creation of unknown topics on permissive brokers.
	DefaultCreateTopicKey = "TBW102"
)

// Options configures a Producer.
type Options struct {
	// Identity
	GroupName    string // Producer group reported in heartbeats and sends
	Namespace    string // Optional namespace prefixed to topics and group
	InstanceName string // Distinguishes producers in one process
	UnitMode     bool

	// Discovery
	NameServers      []string         // Static name-server list (host:port)
	NameServerDomain string           // HTTP discovery URL when no static list
	Resolver         namesrv.Resolver // Overrides both when set

	// Transport
	Credentials    remoting.Credentials // ACL credentials (zero value disables signing)
	TLSConfig      *tls.Config          // TLS configuration (nil for plain TCP)
	HeaderCodec    protocol.HeaderCodec // Header serialization (JSON by default)
	ConnectTimeout time.Duration
	SendTimeout    time.Duration // Per-attempt timeout for sync sends

	// Sending
	Retries               int // Extra attempts after the first failure
	Selector              QueueSelector
	Compressor            Compressor
	CompressOver          int // Body size threshold that triggers compression
	CompressLevel         int // zlib level for the default compressor
	MaxMessageSize        int
	DefaultTopicQueueNums int32  // Queue count requested for auto-created topics
	CreateTopicKey        string // Route template topic for auto-creation

	// Background maintenance
	HeartbeatInterval    time.Duration // 0 disables heartbeats
	RouteRefreshInterval time.Duration // 0 disables periodic refresh
	BrokerCooldown       time.Duration // Circuit-breaker open window per broker
}

// NewOptions creates Options with sensible defaults.
func NewOptions() *Options {
	return &Options{
		GroupName:             DefaultGroupName,
		SendTimeout:           DefaultSendTimeout,
		Retries:               DefaultRetries,
		CompressOver:          DefaultCompressOver,
		CompressLevel:         DefaultCompressLevel,
		MaxMessageSize:        DefaultMaxMessageSize,
		HeartbeatInterval:     DefaultHeartbeatInterval,
		RouteRefreshInterval:  DefaultRouteRefreshInterval,
		BrokerCooldown:        DefaultBrokerCooldown,
		DefaultTopicQueueNums: DefaultTopicQueueNums,
		CreateTopicKey:        DefaultCreateTopicKey,
	}
}

// SetGroupName sets the producer group.
func (o *Options) SetGroupName(group string) *Options {
	o.GroupName = group
	return o
}

// SetNamespace sets the namespace prefixed to topics and the group.
func (o *Options) SetNamespace(ns string) *Options {
	o.Namespace = ns
	return o
}

// SetInstanceName sets the instance name used in the client ID.
func (o *Options) SetInstanceName(name string) *Options {
	o.InstanceName = name
	return o
}

// SetNameServers sets a static name-server address list.
func (o *Options) SetNameServers(addrs ...string) *Options {
	o.NameServers = addrs
	return o
}

// SetNameServerDomain sets the HTTP discovery URL used when no static
// list is configured.
func (o *Options) SetNameServerDomain(domain string) *Options {
	o.NameServerDomain = domain
	return o
}

// SetResolver sets a custom name-server resolver.
func (o *Options) SetResolver(r namesrv.Resolver) *Options {
	o.Resolver = r
	return o
}

// SetCredentials sets the ACL access key, secret key and optional token.
func (o *Options) SetCredentials(accessKey, secretKey, securityToken string) *Options {
	o.Credentials = remoting.Credentials{
		AccessKey:     accessKey,
		SecretKey:     secretKey,
		SecurityToken: securityToken,
	}
	return o
}

// SetTLSConfig enables TLS on broker and name-server connections.
func (o *Options) SetTLSConfig(cfg *tls.Config) *Options {
	o.TLSConfig = cfg
	return o
}

// SetHeaderCodec selects the wire header serialization.
func (o *Options) SetHeaderCodec(codec protocol.HeaderCodec) *Options {
	o.HeaderCodec = codec
	return o
}

// SetSendTimeout sets the per-attempt timeout for synchronous sends.
func (o *Options) SetSendTimeout(d time.Duration) *Options {
	o.SendTimeout = d
	return o
}

// SetRetries sets how many extra attempts follow a failed send.
func (o *Options) SetRetries(n int) *Options {
	o.Retries = n
	return o
}

// SetSelector sets the queue selection strategy.
func (o *Options) SetSelector(s QueueSelector) *Options {
	o.Selector = s
	return o
}

// SetCompressor replaces the default zlib compressor.
func (o *Options) SetCompressor(c Compressor) *Options {
	o.Compressor = c
	return o
}

// SetCompressOver sets the body size above which bodies are compressed.
func (o *Options) SetCompressOver(bytes int) *Options {
	o.CompressOver = bytes
	return o
}

// SetCompressLevel sets the zlib level of the default compressor.
func (o *Options) SetCompressLevel(level int) *Options {
	o.CompressLevel = level
	return o
}

// SetMaxMessageSize sets the maximum accepted body size.
func (o *Options) SetMaxMessageSize(bytes int) *Options {
	o.MaxMessageSize = bytes
	return o
}

// SetHeartbeatInterval sets the broker heartbeat period (0 disables).
func (o *Options) SetHeartbeatInterval(d time.Duration) *Options {
	o.HeartbeatInterval = d
	return o
}

// SetRouteRefreshInterval sets the route refresh period (0 disables).
func (o *Options) SetRouteRefreshInterval(d time.Duration) *Options {
	o.RouteRefreshInterval = d
	return o
}

// SetBrokerCooldown sets how long a failing broker is avoided before a
// probe send is allowed through again.
func (o *Options) SetBrokerCooldown(d time.Duration) *Options {
	o.BrokerCooldown = d
	return o
}

// SetUnitMode marks sends as originating from a unit-mode client.
func (o *Options) SetUnitMode(unit bool) *Options {
	o.UnitMode = unit
	return o
}

func (o *Options) withDefaults() *Options {
	out := *o
	if out.GroupName == "" {
		out.GroupName = DefaultGroupName
	}
	if out.SendTimeout <= 0 {
		out.SendTimeout = DefaultSendTimeout
	}
	if out.Retries < 0 {
		out.Retries = 0
	}
	if out.CompressOver <= 0 {
		out.CompressOver = DefaultCompressOver
	}
	if out.CompressLevel == 0 {
		out.CompressLevel = DefaultCompressLevel
	}
	if out.MaxMessageSize <= 0 {
		out.MaxMessageSize = DefaultMaxMessageSize
	}
	if out.DefaultTopicQueueNums <= 0 {
		out.DefaultTopicQueueNums = DefaultTopicQueueNums
	}
	if out.CreateTopicKey == "" {
		out.CreateTopicKey = DefaultCreateTopicKey
	}
	if out.BrokerCooldown <= 0 {
		out.BrokerCooldown = DefaultBrokerCooldown
	}
	if out.Selector == nil {
		out.Selector = NewRoundRobinSelector()
	}
	if out.Compressor == nil {
		out.Compressor = ZlibCompressor{Level: out.CompressLevel}
	}
	return &out
}

// resolver picks the discovery strategy from the configured options.
func (o *Options) resolver() namesrv.Resolver {
	if o.Resolver != nil {
		return o.Resolver
	}
	if o.NameServerDomain != "" {
		return namesrv.NewPassthroughResolver(o.NameServers,
			namesrv.NewHTTPResolverWithDomain(o.NameServerDomain))
	}
	return namesrv.NewPassthroughResolver(o.NameServers, namesrv.EnvResolver{})
}
