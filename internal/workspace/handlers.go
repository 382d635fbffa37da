package workspace

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/microcosm-cc/bluemonday"
	"github.com/shiploop/shiploop-api/internal/errors"
)

const maxRecordBytes = 256 << 10

// Workspace bundles every record store.
type Workspace struct {
	Projects    *Store[Project]
	Ideas       *Store[Idea]
	Goals       *Store[Goal]
	Feedback    *Store[Feedback]
	Directories *Store[DirectorySubmission]
	Pricing     *Store[PricingExperiment]
	Posts       *Store[PublicPost]
	Checklists  *Checklists
}

func New() *Workspace {
	policy := bluemonday.UGCPolicy()
	return &Workspace{
		Projects:    NewStore[Project]("project", policy),
		Ideas:       NewStore[Idea]("idea", policy),
		Goals:       NewStore[Goal]("goal", policy),
		Feedback:    NewStore[Feedback]("feedback", policy),
		Directories: NewStore[DirectorySubmission]("directory submission", policy),
		Pricing:     NewStore[PricingExperiment]("pricing experiment", policy),
		Posts:       NewStore[PublicPost]("public post", policy),
		Checklists:  NewChecklists(),
	}
}

// RegisterRoutes mounts CRUD routes for every kind on rg. The group must run
// after the session middleware that sets user_id.
func (w *Workspace) RegisterRoutes(rg *gin.RouterGroup) {
	Register(rg, "/projects", w.Projects)
	Register(rg, "/ideas", w.Ideas)
	Register(rg, "/goals", w.Goals)
	Register(rg, "/feedback", w.Feedback)
	Register(rg, "/directory-submissions", w.Directories)
	Register(rg, "/pricing-experiments", w.Pricing)
	Register(rg, "/posts", w.Posts)

	rg.GET("/launch/checklists", w.handleChecklists())
	rg.POST("/launch/checklists/:platform/items/:item/toggle", w.handleToggle())
}

func userID(c *gin.Context) (string, bool) {
	id := c.GetString("user_id")
	if id == "" {
		errors.Respond(c, errors.NewUnauthorizedError("Authentication required"))
		return "", false
	}
	return id, true
}

func readBody(c *gin.Context) ([]byte, bool) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxRecordBytes+1))
	if err != nil || len(body) > maxRecordBytes {
		errors.Respond(c, errors.NewValidationError("Invalid request body"))
		return nil, false
	}
	return body, true
}

// Register mounts list, create, get, patch and delete for one store.
func Register[T Record[T]](rg gin.IRoutes, path string, store *Store[T]) {
	rg.GET(path, func(c *gin.Context) {
		user, ok := userID(c)
		if !ok {
			return
		}
		items := store.List(user, c.Query("q"))
		c.JSON(http.StatusOK, gin.H{"items": items, "count": len(items)})
	})

	rg.POST(path, func(c *gin.Context) {
		user, ok := userID(c)
		if !ok {
			return
		}
		var rec T
		if err := c.ShouldBindJSON(&rec); err != nil {
			errors.Respond(c, errors.NewValidationError("Invalid request body"))
			return
		}
		created, err := store.Create(user, rec)
		if err != nil {
			errors.Respond(c, err)
			return
		}
		c.JSON(http.StatusCreated, created)
	})

	rg.GET(path+"/:id", func(c *gin.Context) {
		user, ok := userID(c)
		if !ok {
			return
		}
		rec, err := store.Get(user, c.Param("id"))
		if err != nil {
			errors.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, rec)
	})

	rg.PATCH(path+"/:id", func(c *gin.Context) {
		user, ok := userID(c)
		if !ok {
			return
		}
		body, ok := readBody(c)
		if !ok {
			return
		}
		rec, err := store.Patch(user, c.Param("id"), body)
		if err != nil {
			errors.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, rec)
	})

	rg.DELETE(path+"/:id", func(c *gin.Context) {
		user, ok := userID(c)
		if !ok {
			return
		}
		if err := store.Delete(user, c.Param("id")); err != nil {
			errors.Respond(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})
}

// handleChecklists godoc
// @Summary Launch checklists for the current user
// @Tags launch
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/launch/checklists [get]
func (w *Workspace) handleChecklists() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := userID(c)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, gin.H{"checklists": w.Checklists.List(user)})
	}
}

func (w *Workspace) handleToggle() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := userID(c)
		if !ok {
			return
		}
		list, err := w.Checklists.Toggle(user, c.Param("platform"), c.Param("item"))
		if err != nil {
			errors.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, list)
	}
}
