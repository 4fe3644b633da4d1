package livehttp

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"upbot/internal/command"
	"upbot/internal/config"
	"upbot/internal/history"
	"upbot/internal/trader"
	"upbot/internal/trend"
)

// StateProvider is the controller's published read side.
type StateProvider interface {
	Snapshot() *trader.Snapshot
	LastScan() trend.Result
}

type HistoryReader interface {
	List(ctx context.Context, limit int) ([]history.Record, error)
	Day(ctx context.Context, date string) ([]history.Record, error)
}

// StrategyStore persists operator edits; the controller picks them up on its
// next config refresh.
type StrategyStore interface {
	Current() config.Strategy
	Save(s config.Strategy) (config.Strategy, error)
}

// CommandSink queues an operator command for the controller.
type CommandSink interface {
	Post(cmd command.Command) error
}

type Router struct {
	state    StateProvider
	history  HistoryReader
	strategy StrategyStore
	commands CommandSink
}

func NewRouter(state StateProvider, hist HistoryReader, strategy StrategyStore, commands CommandSink) *Router {
	return &Router{state: state, history: hist, strategy: strategy, commands: commands}
}

// Register mounts the /api/live routes on group.
func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.GET("/state", r.handleState)
	group.GET("/scan", r.handleScan)
	if r.history != nil {
		group.GET("/history", r.handleHistory)
	}
	if r.strategy != nil {
		group.GET("/config", r.handleGetConfig)
		group.PUT("/config", r.handlePutConfig)
	}
	if r.commands != nil {
		group.POST("/command", r.handleCommand)
	}
}

func (r *Router) handleState(c *gin.Context) {
	c.JSON(http.StatusOK, r.state.Snapshot())
}

func (r *Router) handleScan(c *gin.Context) {
	res := r.state.LastScan()
	if limit, _ := strconv.Atoi(c.Query("limit")); limit > 0 && len(res.All) > limit {
		res.All = res.All[:limit]
	}
	c.JSON(http.StatusOK, res)
}

func (r *Router) handleHistory(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if date := strings.TrimSpace(c.Query("date")); date != "" {
		if _, err := time.Parse("2006-01-02", date); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
			return
		}
		recs, err := r.history.Day(ctx, date)
		if err != nil {
			log.Errorf("history day %s: %v", date, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"trades": recs, "summary": history.Summarize(date, recs)})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if limit <= 0 {
		limit = 100
	}
	if limit > 500 {
		limit = 500
	}
	recs, err := r.history.List(ctx, limit)
	if err != nil {
		log.Errorf("history list: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": recs})
}

func (r *Router) handleGetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, r.strategy.Current())
}

// handlePutConfig merges the body over the current strategy, so partial
// documents only change the fields they name.
func (r *Router) handlePutConfig(c *gin.Context) {
	next := r.strategy.Current()
	if err := c.ShouldBindJSON(&next); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	saved, err := r.strategy.Save(next)
	if err != nil {
		log.Errorf("save strategy: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	log.Infof("strategy updated from %s: %s", c.ClientIP(), saved)
	c.JSON(http.StatusOK, saved)
}

func (r *Router) handleCommand(c *gin.Context) {
	var cmd command.Command
	if err := c.ShouldBindJSON(&cmd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cmd.Market = strings.ToUpper(strings.TrimSpace(cmd.Market))
	if err := command.Validate(cmd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := r.commands.Post(cmd); err != nil {
		log.Errorf("queue command %s: %v", cmd.Kind, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	log.Infof("command %s %s queued from %s", cmd.Kind, cmd.Market, c.ClientIP())
	c.JSON(http.StatusAccepted, gin.H{"status": "queued", "command": cmd.Kind, "market": cmd.Market})
}
