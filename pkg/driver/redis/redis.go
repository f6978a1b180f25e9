// Package redis implements the workledger store on Redis.
//
// Keys, with the default prefix:
//
//	workledger:employees:42     CBOR encoded entity
//	workledger:employees:ids    sorted set of IDs, score = ID, for ordered listing
//	workledger:employees:seq    counter for auto-assigned IDs
//
// Transactions are buffered and committed with WATCH and MULTI/EXEC, so a commit
// either applies every staged write or fails with redis.TxFailedErr when a watched
// entity changed underneath it.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/redis/go-redis/v9"

	"github.com/workledger/workledger/pkg/constants"
	"github.com/workledger/workledger/pkg/driver"
	"github.com/workledger/workledger/pkg/models"
	"github.com/workledger/workledger/pkg/store"
)

var _ driver.Driver = (*Driver)(nil)

// Config holds the client settings. URL, when set, is parsed with redis.ParseURL and
// overrides Addr, Password and DB.
type Config struct {
	URL          string
	Addr         string
	Password     string
	DB           int
	KeyPrefix    string
	PoolSize     int
	MinIdleConns int
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

func (c Config) options() (*redis.Options, error) {
	opts := &redis.Options{
		Addr:         c.Addr,
		Password:     c.Password,
		DB:           c.DB,
		PoolSize:     c.PoolSize,
		MinIdleConns: c.MinIdleConns,
		MaxRetries:   c.MaxRetries,
		DialTimeout:  c.DialTimeout,
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
	}
	if c.URL != "" {
		parsed, err := redis.ParseURL(c.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts.Addr = parsed.Addr
		opts.Password = parsed.Password
		opts.Username = parsed.Username
		opts.DB = parsed.DB
		opts.TLSConfig = parsed.TLSConfig
	}
	if opts.Addr == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}
	return opts, nil
}

type Option func(*Driver)

func WithClock(c clock.Clock) Option {
	return func(d *Driver) { d.clock = c }
}

type Driver struct {
	cfg   Config
	keys  keys
	clock clock.Clock

	mu     sync.RWMutex
	client *redis.Client
}

func New(cfg Config, opts ...Option) *Driver {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "workledger"
	}
	d := &Driver{cfg: cfg, keys: keys(cfg.KeyPrefix), clock: clock.New()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Driver) Name() string { return constants.DriverRedis }

func (d *Driver) Connect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.client != nil {
		return nil
	}
	opts, err := d.cfg.options()
	if err != nil {
		return err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return fmt.Errorf("connect to redis: %w", err)
	}
	d.client = client
	return nil
}

func (d *Driver) conn() (*redis.Client, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.client == nil {
		return nil, constants.ErrNotConnected
	}
	return d.client, nil
}

func (d *Driver) Ping(ctx context.Context) error {
	c, err := d.conn()
	if err != nil {
		return err
	}
	return c.Ping(ctx).Err()
}

func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.client == nil {
		return nil
	}
	err := d.client.Close()
	d.client = nil
	return err
}

// keys builds key names under a prefix.
type keys string

func (k keys) entity(kind models.Kind, id int64) string {
	return fmt.Sprintf("%s:%s:%d", k, kind, id)
}

func (k keys) ids(kind models.Kind) string {
	return fmt.Sprintf("%s:%s:ids", k, kind)
}

func (k keys) seq(kind models.Kind) string {
	return fmt.Sprintf("%s:%s:seq", k, kind)
}

// raiseSeq moves a counter up to ARGV[1] so explicit IDs are never handed out again.
var raiseSeq = redis.NewScript(`
local cur = tonumber(redis.call('GET', KEYS[1]) or '0')
local id = tonumber(ARGV[1])
if id > cur then
  redis.call('SET', KEYS[1], id)
end
return 0
`)

func (d *Driver) Get(ctx context.Context, kind models.Kind, id int64) (models.Entity, error) {
	c, err := d.conn()
	if err != nil {
		return nil, err
	}
	return d.get(ctx, c, kind, id)
}

// getter is the part of redis.Client and redis.Tx that get needs.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (d *Driver) get(ctx context.Context, c getter, kind models.Kind, id int64) (models.Entity, error) {
	if _, err := models.ParseKind(string(kind)); err != nil {
		return nil, err
	}
	b, err := c.Get(ctx, d.keys.entity(kind, id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%d: %w", kind, id, err)
	}
	return decode(kind, id, b)
}

func decode(kind models.Kind, id int64, b []byte) (models.Entity, error) {
	e, err := models.UnmarshalCBOR(kind, b)
	if err != nil {
		return nil, err
	}
	e.SetEntityID(id)
	return e, nil
}

func (d *Driver) List(ctx context.Context, kind models.Kind, page models.Page) ([]models.Entity, error) {
	c, err := d.conn()
	if err != nil {
		return nil, err
	}
	if _, err := models.ParseKind(string(kind)); err != nil {
		return nil, err
	}
	page = page.Normalize()

	members, err := c.ZRange(ctx, d.keys.ids(kind), int64(page.Offset), int64(page.Offset+page.Limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	out := make([]models.Entity, 0, len(members))
	if len(members) == 0 {
		return out, nil
	}

	ids := make([]int64, len(members))
	names := make([]string, len(members))
	for i, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("list %s: bad id %q in index", kind, m)
		}
		ids[i] = id
		names[i] = d.keys.entity(kind, id)
	}
	vals, err := c.MGet(ctx, names...).Result()
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			// index entry without a value: deleted concurrently
			continue
		}
		e, err := decode(kind, ids[i], []byte(s))
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", kind, err)
		}
		out = append(out, e)
	}
	return out, nil
}

func (d *Driver) Insert(ctx context.Context, e models.Entity) error {
	c, err := d.conn()
	if err != nil {
		return err
	}
	if err := models.Validate(e); err != nil {
		return err
	}
	if err := d.assignID(ctx, c, e); err != nil {
		return err
	}
	e.Touch(d.clock.Now().UTC())
	body, err := models.MarshalCBOR(e)
	if err != nil {
		return err
	}

	kind, id := e.EntityKind(), e.EntityID()
	var created *redis.BoolCmd
	_, err = c.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		created = pipe.SetNX(ctx, d.keys.entity(kind, id), body, 0)
		pipe.ZAdd(ctx, d.keys.ids(kind), redis.Z{Score: float64(id), Member: id})
		return nil
	})
	if err != nil {
		return fmt.Errorf("insert %s/%d: %w", kind, id, err)
	}
	if !created.Val() {
		return fmt.Errorf("%w: %s/%d already exists", constants.ErrInvalidEntity, kind, id)
	}
	return nil
}

// assignID draws the next ID for a zero ID, or raises the counter past an explicit one.
func (d *Driver) assignID(ctx context.Context, c redis.Cmdable, e models.Entity) error {
	kind := e.EntityKind()
	if e.EntityID() == 0 {
		id, err := c.Incr(ctx, d.keys.seq(kind)).Result()
		if err != nil {
			return fmt.Errorf("next %s id: %w", kind, err)
		}
		e.SetEntityID(id)
		return nil
	}
	if err := raiseSeq.Run(ctx, c, []string{d.keys.seq(kind)}, e.EntityID()).Err(); err != nil {
		return fmt.Errorf("raise %s id counter: %w", kind, err)
	}
	return nil
}

func (d *Driver) Update(ctx context.Context, e models.Entity) error {
	c, err := d.conn()
	if err != nil {
		return err
	}
	if err := models.Validate(e); err != nil {
		return err
	}
	kind, id := e.EntityKind(), e.EntityID()
	cur, err := d.get(ctx, c, kind, id)
	if err != nil {
		return err
	}
	if cur == nil {
		return fmt.Errorf("%w: %s/%d", constants.ErrNotFound, kind, id)
	}
	body, err := d.encodeUpdate(cur, e)
	if err != nil {
		return err
	}
	ok, err := c.SetXX(ctx, d.keys.entity(kind, id), body, 0).Result()
	if err != nil {
		return fmt.Errorf("update %s/%d: %w", kind, id, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s/%d", constants.ErrNotFound, kind, id)
	}
	return nil
}

func (d *Driver) encodeUpdate(cur, next models.Entity) ([]byte, error) {
	if a, b := models.TimestampsOf(cur), models.TimestampsOf(next); a != nil && b != nil {
		b.CreatedAt = a.CreatedAt
	}
	next.Touch(d.clock.Now().UTC())
	return models.MarshalCBOR(next)
}

func (d *Driver) Delete(ctx context.Context, kind models.Kind, id int64) error {
	c, err := d.conn()
	if err != nil {
		return err
	}
	if _, err := models.ParseKind(string(kind)); err != nil {
		return err
	}
	var deleted *redis.IntCmd
	_, err = c.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		deleted = pipe.Del(ctx, d.keys.entity(kind, id))
		pipe.ZRem(ctx, d.keys.ids(kind), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete %s/%d: %w", kind, id, err)
	}
	if deleted.Val() == 0 {
		return fmt.Errorf("%w: %s/%d", constants.ErrNotFound, kind, id)
	}
	return nil
}

// Begin returns a buffered transaction committed atomically with WATCH and MULTI.
func (d *Driver) Begin(ctx context.Context) (store.Tx, error) {
	if _, err := d.conn(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return store.NewBufferedTx(d, d.apply), nil
}
