package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"strings"
	"sync"

	"bankdapp/internal/domain"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrNotConnected = domain.ErrNotConnected
	ErrRejected     = domain.ErrUserRejected
	ErrNoKey        = errors.New("no wallet key configured")
)

type KeySource interface {
	Load(ctx context.Context) (*ecdsa.PrivateKey, error)
}

type HexKey string

func (k HexKey) Load(context.Context) (*ecdsa.PrivateKey, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(string(k)), "0x")
	if raw == "" {
		return nil, ErrNoKey
	}
	key, err := crypto.HexToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return key, nil
}

type KeystoreFile struct {
	Path     string
	Password string
}

func (k KeystoreFile) Load(context.Context) (*ecdsa.PrivateKey, error) {
	if k.Path == "" {
		return nil, ErrNoKey
	}
	data, err := os.ReadFile(k.Path)
	if err != nil {
		return nil, fmt.Errorf("read keystore: %w", err)
	}
	key, err := keystore.DecryptKey(data, k.Password)
	if err != nil {
		return nil, fmt.Errorf("decrypt keystore: %w", err)
	}
	return key.PrivateKey, nil
}

func SourceFromConfig(privateKey, keystorePath, password string) KeySource {
	if strings.TrimSpace(keystorePath) != "" {
		return KeystoreFile{Path: keystorePath, Password: password}
	}
	return HexKey(privateKey)
}

type Approver interface {
	ConfirmTransaction(tx *types.Transaction) bool
}

type ApproverFunc func(tx *types.Transaction) bool

func (f ApproverFunc) ConfirmTransaction(tx *types.Transaction) bool {
	return f(tx)
}

// ApproveAll confirms every transaction; used where the user already
// confirmed the action in the interface.
var ApproveAll Approver = ApproverFunc(func(*types.Transaction) bool { return true })

type Connector struct {
	source   KeySource
	approver Approver

	mu          sync.RWMutex
	key         *ecdsa.PrivateKey
	session     domain.Session
	subscribers map[int]chan domain.Session
	nextSub     int
}

func NewConnector(source KeySource, approver Approver) (*Connector, error) {
	if source == nil {
		return nil, errors.New("key source is required")
	}
	if approver == nil {
		approver = ApproveAll
	}
	return &Connector{
		source:      source,
		approver:    approver,
		subscribers: make(map[int]chan domain.Session),
	}, nil
}

func (c *Connector) Connect(ctx context.Context) (domain.Session, error) {
	c.mu.RLock()
	if c.session.Connected {
		session := c.session
		c.mu.RUnlock()
		return session, nil
	}
	c.mu.RUnlock()

	key, err := c.source.Load(ctx)
	if err != nil {
		return domain.Session{}, err
	}

	c.mu.Lock()
	c.key = key
	c.session = domain.Session{Account: crypto.PubkeyToAddress(key.PublicKey), Connected: true}
	session := c.session
	c.broadcastLocked(session)
	c.mu.Unlock()

	slog.Info("wallet connected", "account", session.Account.Hex())
	return session, nil
}

func (c *Connector) Disconnect() domain.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.session.Connected {
		return c.session
	}
	slog.Info("wallet disconnected", "account", c.session.Account.Hex())
	c.key = nil
	c.session = domain.Session{}
	c.broadcastLocked(c.session)
	return c.session
}

func (c *Connector) Session() domain.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

// Subscribe returns a channel that receives the latest session after every
// change. Slow readers only see the most recent value.
func (c *Connector) Subscribe() (<-chan domain.Session, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextSub
	c.nextSub++
	ch := make(chan domain.Session, 1)
	c.subscribers[id] = ch
	cancel := func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if sub, ok := c.subscribers[id]; ok {
			delete(c.subscribers, id)
			close(sub)
		}
	}
	return ch, cancel
}

func (c *Connector) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	c.mu.RLock()
	key := c.key
	c.mu.RUnlock()
	if key == nil {
		return nil, ErrNotConnected
	}
	if !c.approver.ConfirmTransaction(tx) {
		return nil, ErrRejected
	}
	return types.SignTx(tx, types.LatestSignerForChainID(chainID), key)
}

func (c *Connector) broadcastLocked(session domain.Session) {
	for _, ch := range c.subscribers {
		select {
		case <-ch:
		default:
		}
		ch <- session
	}
}
