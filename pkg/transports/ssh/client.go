package ssh

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
)

// Client is a single SSH connection to a managed host. Commands run in
// fresh sessions; file access shares one lazily opened SFTP channel.
type Client struct {
	config *Config
	logger zerolog.Logger

	connMu      sync.RWMutex
	client      *ssh.Client
	proxy       *ssh.Client
	sftp        *sftp.Client
	connectedAt time.Time
	lastUsedAt  time.Time
	stop        chan struct{}
}

// NewClient creates a client for config. Connect must be called before use.
func NewClient(config *Config, logger zerolog.Logger) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Client{
		config: config,
		logger: logger.With().Str("component", "ssh").Str("host", config.Host).Logger(),
	}, nil
}

// Connect establishes the SSH connection, through the jump host when one
// is configured.
func (c *Client) Connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.client != nil {
		return nil
	}

	clientConfig, err := c.config.BuildSSHClientConfig()
	if err != nil {
		return &TransportError{Op: "connect", Err: err, IsAuthError: true}
	}

	var client *ssh.Client
	if c.config.IsProxyEnabled() {
		client, err = c.dialViaProxy(ctx, clientConfig)
	} else {
		client, err = dial(ctx, c.config.Address(), clientConfig)
	}
	if err != nil {
		return err
	}

	c.client = client
	c.connectedAt = time.Now()
	c.lastUsedAt = c.connectedAt
	c.stop = make(chan struct{})

	if c.config.KeepAliveInterval > 0 {
		go c.keepAlive(client, c.stop)
	}

	c.logger.Info().Str("address", c.config.Address()).Msg("SSH connection established")
	return nil
}

// dial opens a connection, giving up when ctx is done.
func dial(ctx context.Context, address string, clientConfig *ssh.ClientConfig) (*ssh.Client, error) {
	type result struct {
		client *ssh.Client
		err    error
	}
	ch := make(chan result, 1)
	go func() {
		client, err := ssh.Dial("tcp", address, clientConfig)
		ch <- result{client, err}
	}()

	select {
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.client != nil {
				_ = r.client.Close()
			}
		}()
		return nil, &TransportError{Op: "connect", Err: ctx.Err(), IsTemporary: true}
	case r := <-ch:
		if r.err != nil {
			return nil, &TransportError{Op: "connect", Err: r.err, IsTemporary: true}
		}
		return r.client, nil
	}
}

// dialViaProxy connects to the target through the jump host. The jump host
// uses the same credentials as the target.
func (c *Client) dialViaProxy(ctx context.Context, targetConfig *ssh.ClientConfig) (*ssh.Client, error) {
	proxyConfig := *c.config
	proxyConfig.Host = c.config.ProxyHost
	proxyConfig.Port = c.config.ProxyPort
	proxyConfig.User = c.config.ProxyUser

	proxyClientConfig, err := proxyConfig.BuildSSHClientConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to build proxy config: %w", err)
	}

	c.logger.Debug().Str("proxy", proxyConfig.Address()).Msg("Connecting to jump host")
	proxyClient, err := dial(ctx, proxyConfig.Address(), proxyClientConfig)
	if err != nil {
		return nil, err
	}

	target := c.config.Address()
	conn, err := proxyClient.Dial("tcp", target)
	if err != nil {
		_ = proxyClient.Close()
		return nil, &TransportError{Op: "connect-via-proxy", Err: err, IsTemporary: true}
	}

	ncc, chans, reqs, err := ssh.NewClientConn(conn, target, targetConfig)
	if err != nil {
		_ = conn.Close()
		_ = proxyClient.Close()
		return nil, &TransportError{Op: "connect-via-proxy", Err: err, IsAuthError: true}
	}

	c.proxy = proxyClient
	return ssh.NewClient(ncc, chans, reqs), nil
}

// Close closes the SFTP channel and the connection.
func (c *Client) Close() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.client == nil {
		return nil
	}
	close(c.stop)

	if c.sftp != nil {
		_ = c.sftp.Close()
		c.sftp = nil
	}
	err := c.client.Close()
	c.client = nil
	if c.proxy != nil {
		_ = c.proxy.Close()
		c.proxy = nil
	}

	if err != nil {
		return &TransportError{Op: "disconnect", Err: err}
	}
	c.logger.Debug().Msg("SSH connection closed")
	return nil
}

// Info returns information about the current connection.
func (c *Client) Info() ConnectionInfo {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return ConnectionInfo{
		Host:         c.config.Host,
		Port:         c.config.Port,
		User:         c.config.User,
		ConnectedAt:  c.connectedAt,
		LastActivity: c.lastUsedAt,
	}
}

func (c *Client) keepAlive(client *ssh.Client, stop <-chan struct{}) {
	ticker := time.NewTicker(c.config.KeepAliveInterval)
	defer ticker.Stop()

	retries := 0
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		if _, _, err := client.SendRequest("keepalive@openssh.com", true, nil); err != nil {
			retries++
			c.logger.Warn().Err(err).Int("retries", retries).Msg("Keep-alive failed")
			if retries >= c.config.MaxKeepAliveRetries {
				c.logger.Error().Msg("Keep-alive failed too many times, connection may be dead")
				return
			}
			continue
		}
		retries = 0
	}
}

// getClient returns the connected SSH client.
func (c *Client) getClient() (*ssh.Client, error) {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.client == nil {
		return nil, &TransportError{Op: "get-client", Err: fmt.Errorf("not connected")}
	}
	c.lastUsedAt = time.Now()
	return c.client, nil
}

// getSFTP returns the shared SFTP client, opening it on first use.
func (c *Client) getSFTP() (*sftp.Client, error) {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.client == nil {
		return nil, &TransportError{Op: "sftp-init", Err: fmt.Errorf("not connected")}
	}
	if c.sftp != nil {
		return c.sftp, nil
	}

	s, err := sftp.NewClient(c.client)
	if err != nil {
		return nil, &TransportError{
			Op:          "sftp-init",
			Err:         fmt.Errorf("failed to create SFTP client: %w", err),
			IsTemporary: true,
		}
	}
	c.sftp = s
	return s, nil
}
