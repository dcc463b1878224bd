package socket

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

const (
	DefaultHost              = "127.0.0.1"
	DefaultPort              = 2333
	DefaultPassword          = "youshallnotpass"
	DefaultReconnectInterval = 5 * time.Second
	DefaultResumeTimeout     = 60 * time.Second
	DefaultRESTTimeout       = 10 * time.Second
)

// Options describe one audio node. Zero values fall back to the defaults above.
type Options struct {
	Tag               string
	Host              string
	Port              int
	Password          string
	Secure            bool
	ReconnectInterval time.Duration
	ResumeKey         string
	ResumeTimeout     time.Duration
	RESTTimeout       time.Duration
	// RESTRate caps load-tracks requests per second. Zero disables the limit.
	RESTRate float64
}

// Key identifies the node inside a manager: the tag when set, the host otherwise.
func (o Options) Key() string {
	if o.Tag != "" {
		return o.Tag
	}
	if o.Host == "" {
		return DefaultHost
	}
	return o.Host
}

func (o Options) withDefaults() Options {
	if o.Host == "" {
		o.Host = DefaultHost
	}
	if o.Port == 0 {
		o.Port = DefaultPort
	}
	if o.Password == "" {
		o.Password = DefaultPassword
	}
	if o.ReconnectInterval <= 0 {
		o.ReconnectInterval = DefaultReconnectInterval
	}
	if o.ResumeTimeout <= 0 {
		o.ResumeTimeout = DefaultResumeTimeout
	}
	if o.RESTTimeout <= 0 {
		o.RESTTimeout = DefaultRESTTimeout
	}
	return o
}

func (o Options) address() string {
	return net.JoinHostPort(o.Host, strconv.Itoa(o.Port))
}

func (o Options) socketURL() string {
	scheme := "ws"
	if o.Secure {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s", scheme, o.address())
}

func (o Options) restURL(path string) string {
	scheme := "http"
	if o.Secure {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s%s", scheme, o.address(), path)
}
