// Package session owns the live MongoDB connection, the management API client
// and any temporary database credential created on behalf of the caller.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/mongodb-labs/atlas-mcp-server/internal/atlas"
	mcperrors "github.com/mongodb-labs/atlas-mcp-server/internal/errors"
	"github.com/mongodb-labs/atlas-mcp-server/internal/logging"
	"github.com/mongodb-labs/atlas-mcp-server/internal/metrics"
	"github.com/mongodb-labs/atlas-mcp-server/internal/mongodb"
)

// ManagementClient is the subset of the Atlas API the session and tools use.
type ManagementClient interface {
	HasCredentials() bool
	SendEvents(ctx context.Context, events any) error
	ListProjects(ctx context.Context) ([]atlas.Project, error)
	ListClusters(ctx context.Context, projectID string) ([]atlas.Cluster, error)
	GetCluster(ctx context.Context, projectID, clusterName string) (*atlas.Cluster, error)
	CreateDatabaseUser(ctx context.Context, projectID string, user atlas.DatabaseUser) (*atlas.DatabaseUser, error)
	DeleteDatabaseUser(ctx context.Context, projectID, username string) error
}

// DefaultConnectTimeout bounds a fallback connection attempt shared by several callers.
const DefaultConnectTimeout = 10 * time.Second

// ErrClosed is returned when a connection is attempted after Close.
var ErrClosed = errors.New("session is closed")

// Connector opens a connection handle for uri.
type Connector func(ctx context.Context, uri string) (mongodb.Conn, error)

// GrantedCredential is a temporary database user created for this session.
// It must be revoked exactly once when the session tears down.
type GrantedCredential struct {
	Principal    string    // database username
	ScopeID      string    // project id owning the user
	ResourceName string    // cluster the user is scoped to
	ExpiresAt    time.Time // server-enforced deletion time
}

// AgentRunner identifies the connected MCP client.
type AgentRunner struct {
	Name    string
	Version string
}

// ConnectedCluster records the Atlas cluster behind the current connection.
type ConnectedCluster struct {
	ProjectID   string
	ClusterName string
}

// Options configures a Session.
type Options struct {
	// ID defaults to a random UUID.
	ID string
	// ConnectionString is used when a tool needs a connection and none is open.
	ConnectionString string
	Connector        Connector
	// APIClient may be unauthenticated; it is still used for telemetry.
	APIClient ManagementClient
	// ConnectTimeout bounds the fallback connection attempt. Defaults to DefaultConnectTimeout.
	ConnectTimeout time.Duration
}

// Session is safe for concurrent use.
type Session struct {
	id         string
	defaultURI string
	connector  Connector
	apiClient  ManagementClient
	timeout    time.Duration

	mu          sync.Mutex
	closed      bool
	conn        mongodb.Conn
	credential  *GrantedCredential
	cluster     *ConnectedCluster
	expiryTimer *time.Timer
	agent       *AgentRunner

	connectGroup singleflight.Group
}

// New creates a disconnected session.
func New(opts Options) *Session {
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	return &Session{
		id:         id,
		defaultURI: opts.ConnectionString,
		connector:  opts.Connector,
		apiClient:  opts.APIClient,
		timeout:    timeout,
	}
}

// ID returns the session correlation id.
func (s *Session) ID() string {
	return s.id
}

// SetAgentRunner records the client identity once both name and version are known.
// Later calls are ignored.
func (s *Session) SetAgentRunner(name, version string) {
	if name == "" || version == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.agent != nil {
		return
	}
	s.agent = &AgentRunner{Name: name, Version: version}
}

// AgentRunner returns the client identity, if recorded.
func (s *Session) AgentRunner() (AgentRunner, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.agent == nil {
		return AgentRunner{}, false
	}
	return *s.agent, true
}

// ClientInfo returns the client name and version, or empty strings.
func (s *Session) ClientInfo() (string, string) {
	agent, _ := s.AgentRunner()
	return agent.Name, agent.Version
}

// IsConnected reports whether a connection handle is present.
func (s *Session) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// ConnectedCluster returns the Atlas cluster behind the connection, if any.
func (s *Session) ConnectedCluster() (ConnectedCluster, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cluster == nil {
		return ConnectedCluster{}, false
	}
	return *s.cluster, true
}

// GrantedCredential returns the temporary credential, if any.
func (s *Session) GrantedCredential() (GrantedCredential, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.credential == nil {
		return GrantedCredential{}, false
	}
	return *s.credential, true
}

// HasCredentials reports whether management API credentials are configured.
func (s *Session) HasCredentials() bool {
	return s.apiClient != nil && s.apiClient.HasCredentials()
}

// APIClient returns the management client, which may be unauthenticated.
func (s *Session) APIClient() ManagementClient {
	return s.apiClient
}

// EnsureAuthenticated returns a management client usable for credentialed calls.
func (s *Session) EnsureAuthenticated() (ManagementClient, error) {
	if !s.HasCredentials() {
		return nil, mcperrors.New(mcperrors.KindAuthenticationRequired, "ensure_authenticated", nil)
	}
	return s.apiClient, nil
}

// EnsureConnected returns the live connection, opening one from the configured
// connection string when none is present. Concurrent callers share one attempt,
// which is not tied to any single caller's cancellation.
func (s *Session) EnsureConnected(ctx context.Context) (mongodb.Conn, error) {
	s.mu.Lock()
	conn, closed := s.conn, s.closed
	s.mu.Unlock()
	if conn != nil {
		return conn, nil
	}
	if closed || s.defaultURI == "" {
		return nil, mcperrors.New(mcperrors.KindNotConnected, "ensure_connected", nil)
	}

	v, err, _ := s.connectGroup.Do("default", func() (interface{}, error) {
		s.mu.Lock()
		existing := s.conn
		s.mu.Unlock()
		if existing != nil {
			return existing, nil
		}

		dialCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		c, err := s.dial(dialCtx, s.defaultURI)
		if err != nil {
			logger := logging.FromContext(ctx)
			logger.Error().Err(err).Msg("Failed to connect to MongoDB instance using the connection string from the config")
			return nil, mcperrors.New(mcperrors.KindMisconfiguredConnection, "ensure_connected", err)
		}

		s.mu.Lock()
		switch {
		case s.closed:
			s.mu.Unlock()
			closeConn(dialCtx, c)
			return nil, mcperrors.New(mcperrors.KindNotConnected, "ensure_connected", ErrClosed)
		case s.conn != nil:
			existing = s.conn
			s.mu.Unlock()
			closeConn(dialCtx, c)
			return existing, nil
		}
		s.conn = c
		s.cluster = nil
		s.mu.Unlock()
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(mongodb.Conn), nil
}

// Connect tears down any current connection and credential, then connects to uri.
func (s *Session) Connect(ctx context.Context, uri string) error {
	s.Disconnect(ctx)

	c, err := s.dial(ctx, uri)
	if err != nil {
		return err
	}
	return s.install(ctx, c, nil)
}

// ConnectWithCredential tears down the current state, then connects to uri using
// a temporary credential scoped to an Atlas cluster. If the connection fails the
// credential is revoked immediately.
func (s *Session) ConnectWithCredential(ctx context.Context, uri string, cred GrantedCredential) error {
	s.Disconnect(ctx)

	c, err := s.dial(ctx, uri)
	if err != nil {
		s.revoke(ctx, &cred)
		return err
	}
	return s.install(ctx, c, &cred)
}

// SetGrantedCredential records cred on the session and arms a local timer that
// closes the connection at cred.ExpiresAt. A previously recorded credential is
// revoked. After Close, cred itself is revoked immediately instead.
func (s *Session) SetGrantedCredential(ctx context.Context, cred GrantedCredential) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.revoke(ctx, &cred)
		return
	}
	previous, previousTimer := s.recordCredentialLocked(cred)
	s.mu.Unlock()

	s.releasePrevious(ctx, cred, previous, previousTimer)
}

// recordCredentialLocked must be called with s.mu held.
func (s *Session) recordCredentialLocked(cred GrantedCredential) (*GrantedCredential, *time.Timer) {
	previous, previousTimer := s.credential, s.expiryTimer
	s.credential = &cred
	s.cluster = &ConnectedCluster{ProjectID: cred.ScopeID, ClusterName: cred.ResourceName}
	s.expiryTimer = s.armExpiry(cred)
	return previous, previousTimer
}

func (s *Session) releasePrevious(ctx context.Context, cred GrantedCredential, previous *GrantedCredential, previousTimer *time.Timer) {
	if previousTimer != nil {
		previousTimer.Stop()
	}
	if previous != nil && previous.Principal != cred.Principal {
		s.revoke(ctx, previous)
	}
}

// install records c, and cred when present, in one step. A session closed while
// c was being dialed releases both immediately.
func (s *Session) install(ctx context.Context, c mongodb.Conn, cred *GrantedCredential) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		closeConn(ctx, c)
		if cred != nil {
			s.revoke(ctx, cred)
		}
		return mcperrors.New(mcperrors.KindInternal, "connect", ErrClosed)
	}
	old := s.conn
	s.conn = c
	s.cluster = nil
	var previous *GrantedCredential
	var previousTimer *time.Timer
	if cred != nil {
		previous, previousTimer = s.recordCredentialLocked(*cred)
	}
	s.mu.Unlock()

	if old != nil {
		closeConn(ctx, old)
	}
	if cred != nil {
		s.releasePrevious(ctx, *cred, previous, previousTimer)
	}
	return nil
}

// armExpiry must be called with s.mu held.
func (s *Session) armExpiry(cred GrantedCredential) *time.Timer {
	if cred.ExpiresAt.IsZero() {
		return nil
	}
	principal := cred.Principal
	return time.AfterFunc(time.Until(cred.ExpiresAt), func() {
		s.ExpireCredential(principal)
	})
}

// ExpireCredential closes the connection opened with principal and forgets its
// cluster. The credential record is kept so teardown still revokes it.
func (s *Session) ExpireCredential(principal string) {
	s.mu.Lock()
	if s.credential == nil || s.credential.Principal != principal || s.conn == nil {
		s.mu.Unlock()
		return
	}
	conn := s.conn
	s.conn = nil
	s.cluster = nil
	s.mu.Unlock()

	log.Info().Str("principal", principal).Msg("Temporary database user expired, closing connection")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	closeConn(ctx, conn)
}

// Disconnect closes the connection and revokes the temporary credential.
// Failures are logged and never returned. Repeated calls are no-ops.
func (s *Session) Disconnect(ctx context.Context) {
	s.mu.Lock()
	conn := s.conn
	cred := s.credential
	timer := s.expiryTimer
	s.conn = nil
	s.credential = nil
	s.cluster = nil
	s.expiryTimer = nil
	s.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
	if conn != nil {
		closeConn(ctx, conn)
	}
	if cred == nil {
		return
	}
	s.revoke(ctx, cred)
}

// Close tears the session down. Connections and credentials that arrive
// afterwards are released as soon as they do.
func (s *Session) Close(ctx context.Context) {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.Disconnect(ctx)
}

func (s *Session) dial(ctx context.Context, uri string) (mongodb.Conn, error) {
	if s.connector == nil {
		return nil, mcperrors.Newf(mcperrors.KindInternal, "connect", "no connector configured")
	}
	return s.connector(ctx, uri)
}

func (s *Session) revoke(ctx context.Context, cred *GrantedCredential) {
	logger := logging.FromContext(ctx)
	var err error
	if s.apiClient == nil {
		err = atlas.ErrNoCredentials
	} else {
		err = s.apiClient.DeleteDatabaseUser(ctx, cred.ScopeID, cred.Principal)
	}
	metrics.RecordCredentialRevocation(err)
	if err != nil {
		logger.Error().
			Err(mcperrors.New(mcperrors.KindCredentialRevocationFailure, "revoke_credential", err)).
			Str("project_id", cred.ScopeID).
			Str("principal", cred.Principal).
			Msg("Failed to delete temporary database user")
		return
	}
	logger.Debug().
		Str("project_id", cred.ScopeID).
		Str("principal", cred.Principal).
		Msg("Deleted temporary database user")
}

func closeConn(ctx context.Context, conn mongodb.Conn) {
	if err := conn.Disconnect(ctx); err != nil {
		log.Warn().Err(err).Msg("Error closing MongoDB connection")
	}
}
