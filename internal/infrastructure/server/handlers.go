package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/segtrace/internal/instrument/sqltrace"
)

var errOrderNotFound = errors.New("order not found")

// Order is the demo resource served by the orders endpoints.
type Order struct {
	ID       string `json:"id"`
	Item     string `json:"item" binding:"required"`
	Quantity int    `json:"quantity" binding:"required,min=1"`
}

// orderStore is an in-memory table whose reads and writes are traced as
// database calls.
type orderStore struct {
	mu     sync.RWMutex
	orders map[string]Order
	nextID atomic.Int64
	sql    *sqltrace.Tracer
}

func newOrderStore() *orderStore {
	return &orderStore{orders: make(map[string]Order)}
}

func (s *orderStore) exec(ctx context.Context, query string, fn func(context.Context) error) error {
	if s.sql == nil {
		return fn(ctx)
	}
	return s.sql.Exec(ctx, sqltrace.Command{
		DriverName:       "sqlite3",
		DataSource:       "memory",
		Database:         "orders",
		ServerVersion:    "3.45.0",
		ConnectionString: "Data Source=memory;Database=orders;User Id=demo",
		CommandText:      query,
	}, fn)
}

func (s *orderStore) get(ctx context.Context, id string) (Order, error) {
	var o Order
	err := s.exec(ctx, "SELECT id, item, quantity FROM orders WHERE id = ?", func(context.Context) error {
		s.mu.RLock()
		defer s.mu.RUnlock()
		found, ok := s.orders[id]
		if !ok {
			return fmt.Errorf("order %s: %w", id, errOrderNotFound)
		}
		o = found
		return nil
	})
	return o, err
}

func (s *orderStore) insert(ctx context.Context, o Order) (Order, error) {
	err := s.exec(ctx, "INSERT INTO orders (id, item, quantity) VALUES (?, ?, ?)", func(context.Context) error {
		o.ID = strconv.FormatInt(s.nextID.Add(1), 10)
		s.mu.Lock()
		s.orders[o.ID] = o
		s.mu.Unlock()
		return nil
	})
	return o, err
}

func (s *Server) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": s.config.Recorder.ServiceName,
		"tracing": s.rec.Enabled(),
		"policy":  s.rec.Policy().String(),
	})
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) getOrder(c *gin.Context) {
	ctx := c.Request.Context()

	var order Order
	err := s.rec.Capture(ctx, "load-order", func(ctx context.Context) error {
		var err error
		order, err = s.orders.get(ctx, c.Param("id"))
		return err
	})
	switch {
	case errors.Is(err, errOrderNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case err != nil:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load order"})
	default:
		c.JSON(http.StatusOK, order)
	}
}

func (s *Server) createOrder(c *gin.Context) {
	var req Order
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	_ = s.rec.AddMetadata(c.Request.Context(), "item", req.Item)

	order, err := s.orders.insert(c.Request.Context(), req)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save order"})
		return
	}
	c.JSON(http.StatusCreated, order)
}

// proxy fetches the url query parameter through the traced outbound client,
// so the downstream service continues this trace.
func (s *Server) proxy(c *gin.Context) {
	target := c.Query("url")
	if target == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url is required"})
		return
	}

	resp, err := s.client.R().SetContext(c.Request.Context()).Get(target)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream request failed"})
		return
	}
	c.Data(resp.StatusCode(), resp.Header().Get("Content-Type"), resp.Body())
}

func (s *Server) stats(c *gin.Context) {
	c.JSON(http.StatusOK, s.metrics.Snapshot())
}
