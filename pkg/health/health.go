package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"creditchat/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Status of a checked component
type Status string

const (
	StatusUp   Status = "up"
	StatusDown Status = "down"
)

// Component is one health-checked dependency
type Component struct {
	Name        string    `json:"name"`
	Status      Status    `json:"status"`
	Error       string    `json:"error,omitempty"`
	LastChecked time.Time `json:"last_checked"`
}

// Check probes one dependency
type Check func(ctx context.Context) error

// Checker runs registered dependency probes on a fixed period and serves
// the aggregate over HTTP.
type Checker struct {
	mu          sync.RWMutex
	checks      map[string]Check
	components  map[string]*Component
	checkPeriod time.Duration
	log         *logger.Logger
}

// NewChecker creates a health checker
func NewChecker(log *logger.Logger, checkPeriod time.Duration) *Checker {
	if checkPeriod <= 0 {
		checkPeriod = 30 * time.Second
	}
	return &Checker{
		checks:      make(map[string]Check),
		components:  make(map[string]*Component),
		checkPeriod: checkPeriod,
		log:         log,
	}
}

// Register adds a named dependency probe
func (c *Checker) Register(name string, check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
	c.components[name] = &Component{Name: name, Status: StatusDown}
}

// RegisterDatabase probes the SQL connection behind db
func (c *Checker) RegisterDatabase(db *gorm.DB) {
	c.Register("database", func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	})
}

// RegisterRedis probes the cache connection
func (c *Checker) RegisterRedis(client *redis.Client) {
	c.Register("redis", func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
}

// RunChecks executes every registered probe once
func (c *Checker) RunChecks(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for name, check := range c.checks {
		probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := check(probeCtx)
		cancel()

		component := c.components[name]
		component.LastChecked = time.Now()
		if err != nil {
			component.Status = StatusDown
			component.Error = err.Error()
			c.log.Error("Health check failed", "component", name, "error", err.Error())
			continue
		}
		component.Status = StatusUp
		component.Error = ""
	}
}

// Start runs the probes immediately and then on the configured period until
// ctx is cancelled.
func (c *Checker) Start(ctx context.Context) {
	go func() {
		c.RunChecks(ctx)
		ticker := time.NewTicker(c.checkPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.RunChecks(ctx)
			}
		}
	}()
}

// Healthy reports whether every component is up
func (c *Checker) Healthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, component := range c.components {
		if component.Status != StatusUp {
			return false
		}
	}
	return true
}

// Handler serves the aggregate health report. 503 when any dependency is
// down so load balancers can take the instance out of rotation.
func (c *Checker) Handler() gin.HandlerFunc {
	return func(gc *gin.Context) {
		c.mu.RLock()
		components := make([]Component, 0, len(c.components))
		for _, component := range c.components {
			components = append(components, *component)
		}
		c.mu.RUnlock()

		status := "ok"
		code := http.StatusOK
		if !c.Healthy() {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
		gc.JSON(code, gin.H{
			"status":     status,
			"components": components,
		})
	}
}
