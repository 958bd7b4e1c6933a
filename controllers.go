package main

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// -----------------------------
// Helper functions
// -----------------------------

func jsonError(c *gin.Context, code int, msg string) {
	c.JSON(code, gin.H{"error": msg})
}

func internalError(c *gin.Context, err error, msg string) {
	logrus.WithError(err).WithField("request_id", c.GetString("request_id")).Error(msg)
	jsonError(c, http.StatusInternalServerError, msg)
}

// parseEventDate accepts RFC3339 or a bare "YYYY-MM-DD".
func parseEventDate(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t, err = time.Parse("2006-01-02", s)
	}
	return t, err
}

// isDuplicateEntryError matches the unique-constraint message of the
// supported backends. Used where a concurrent writer can beat the
// existence check.
func isDuplicateEntryError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || // SQLite
		strings.Contains(msg, "duplicate key value violates unique constraint") // PostgreSQL
}

func eventIDParam(c *gin.Context) (uint, bool) {
	id64, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		jsonError(c, http.StatusBadRequest, "invalid event id")
		return 0, false
	}
	return uint(id64), true
}

// -----------------------------
// Users
// -----------------------------

func ListUsers(c *gin.Context) {
	var users []User
	if err := DB.Find(&users).Error; err != nil {
		internalError(c, err, "could not list users")
		return
	}
	c.JSON(http.StatusOK, users)
}

func CreateUser(c *gin.Context) {
	var user User
	if err := c.ShouldBindJSON(&user); err != nil {
		jsonError(c, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	user.Username = strings.TrimSpace(user.Username)
	if user.Username == "" {
		jsonError(c, http.StatusBadRequest, "username is required")
		return
	}

	var existing User
	if err := DB.First(&existing, "username = ?", user.Username).Error; err == nil {
		jsonError(c, http.StatusConflict, "username already exists")
		return
	} else if err != gorm.ErrRecordNotFound {
		internalError(c, err, "could not create user")
		return
	}

	if err := DB.Create(&user).Error; err != nil {
		if isDuplicateEntryError(err) {
			jsonError(c, http.StatusConflict, "username already exists")
			return
		}
		internalError(c, err, "could not create user")
		return
	}

	c.JSON(http.StatusCreated, user)
}

func GetUser(c *gin.Context) {
	var user User
	if err := DB.First(&user, "username = ?", c.Param("username")).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			jsonError(c, http.StatusNotFound, "user not found")
			return
		}
		internalError(c, err, "could not fetch user")
		return
	}
	c.JSON(http.StatusOK, user)
}

func DeleteUser(c *gin.Context) {
	username := c.Param("username")

	var user User
	if err := DB.First(&user, "username = ?", username).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			jsonError(c, http.StatusNotFound, "user not found")
			return
		}
		internalError(c, err, "could not delete user")
		return
	}

	// Registrations go first so the user row is never dangling
	if err := DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("username = ?", username).Delete(&Registration{}).Error; err != nil {
			return err
		}
		return tx.Delete(&user).Error
	}); err != nil {
		internalError(c, err, "could not delete user")
		return
	}

	c.Status(http.StatusNoContent)
}

func DeleteAllUsers(c *gin.Context) {
	if err := DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&Registration{}).Error; err != nil {
			return err
		}
		return tx.Where("1 = 1").Delete(&User{}).Error
	}); err != nil {
		internalError(c, err, "could not delete users")
		return
	}
	c.Status(http.StatusNoContent)
}

// -----------------------------
// Events
// -----------------------------

func ListEvents(c *gin.Context) {
	var events []Event
	if err := DB.Order("date asc").Find(&events).Error; err != nil {
		internalError(c, err, "could not list events")
		return
	}
	c.JSON(http.StatusOK, events)
}

func CreateEvent(c *gin.Context) {
	var body EventForm
	if err := c.ShouldBindJSON(&body); err != nil {
		jsonError(c, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}

	date, err := parseEventDate(body.Date)
	if err != nil {
		jsonError(c, http.StatusBadRequest, "invalid date format (use RFC3339 or YYYY-MM-DD)")
		return
	}

	ev := Event{
		Title:       strings.TrimSpace(body.Title),
		Description: body.Description,
		Location:    body.Location,
		Date:        date,
	}

	if err := DB.Create(&ev).Error; err != nil {
		internalError(c, err, "could not create event")
		return
	}

	c.JSON(http.StatusCreated, ev)
}

func GetEvent(c *gin.Context) {
	id, ok := eventIDParam(c)
	if !ok {
		return
	}

	var ev Event
	if err := DB.First(&ev, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			jsonError(c, http.StatusNotFound, "event not found")
			return
		}
		internalError(c, err, "could not fetch event")
		return
	}
	c.JSON(http.StatusOK, ev)
}

// UpdateEvent replaces every mutable field; there is no partial update.
func UpdateEvent(c *gin.Context) {
	id, ok := eventIDParam(c)
	if !ok {
		return
	}

	var body EventForm
	if err := c.ShouldBindJSON(&body); err != nil {
		jsonError(c, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}

	date, err := parseEventDate(body.Date)
	if err != nil {
		jsonError(c, http.StatusBadRequest, "invalid date format (use RFC3339 or YYYY-MM-DD)")
		return
	}

	var ev Event
	if err := DB.First(&ev, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			jsonError(c, http.StatusNotFound, "event not found")
			return
		}
		internalError(c, err, "could not update event")
		return
	}

	ev.Title = strings.TrimSpace(body.Title)
	ev.Description = body.Description
	ev.Location = body.Location
	ev.Date = date

	if err := DB.Save(&ev).Error; err != nil {
		internalError(c, err, "could not update event")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "event updated"})
}

func DeleteEvent(c *gin.Context) {
	id, ok := eventIDParam(c)
	if !ok {
		return
	}

	var ev Event
	if err := DB.First(&ev, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			jsonError(c, http.StatusNotFound, "event not found")
			return
		}
		internalError(c, err, "could not delete event")
		return
	}

	if err := DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("event_id = ?", ev.ID).Delete(&Registration{}).Error; err != nil {
			return err
		}
		return tx.Delete(&ev).Error
	}); err != nil {
		internalError(c, err, "could not delete event")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "event deleted"})
}

func DeleteAllEvents(c *gin.Context) {
	if err := DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&Registration{}).Error; err != nil {
			return err
		}
		return tx.Where("1 = 1").Delete(&Event{}).Error
	}); err != nil {
		internalError(c, err, "could not delete events")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "all events deleted"})
}

// -----------------------------
// Registrations
// -----------------------------

func ListRegistrations(c *gin.Context) {
	var regs []Registration
	if err := DB.Find(&regs).Error; err != nil {
		internalError(c, err, "could not list registrations")
		return
	}
	c.JSON(http.StatusOK, regs)
}

func DeleteRegistration(c *gin.Context) {
	username := c.Query("username")
	eventID64, err := strconv.ParseUint(c.Query("event_id"), 10, 64)
	if username == "" || err != nil {
		jsonError(c, http.StatusBadRequest, "username and event_id query parameters are required")
		return
	}

	var reg Registration
	if err := DB.First(&reg, "username = ? AND event_id = ?", username, uint(eventID64)).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			jsonError(c, http.StatusNotFound, "registration not found")
			return
		}
		internalError(c, err, "could not delete registration")
		return
	}

	if err := DB.Where("username = ? AND event_id = ?", reg.Username, reg.EventID).
		Delete(&Registration{}).Error; err != nil {
		internalError(c, err, "could not delete registration")
		return
	}

	c.Status(http.StatusNoContent)
}

// RegisterForEvent is the one multi-step operation: find-or-create the user,
// check the event, reject duplicates, insert the registration.
//
// The user upsert is persisted before the event lookup, so a profile refresh
// survives even when the target event turns out not to exist. Tests pin this
// ordering.
func RegisterForEvent(c *gin.Context) {
	eventID, ok := eventIDParam(c)
	if !ok {
		return
	}

	var body RegistrationRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		jsonError(c, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}

	// 1) find-or-create the user, latest profile wins
	var user User
	err := DB.First(&user, "username = ?", body.Username).Error
	switch {
	case err == gorm.ErrRecordNotFound:
		user = User{Username: body.Username, Name: body.Name, Email: body.Email}
		if err := DB.Create(&user).Error; err != nil {
			// lost a race with a concurrent create; refresh instead
			if isDuplicateEntryError(err) {
				if err := DB.Save(&user).Error; err != nil {
					internalError(c, err, "could not update user")
					return
				}
				break
			}
			internalError(c, err, "could not create user")
			return
		}
	case err != nil:
		internalError(c, err, "could not register")
		return
	default:
		user.Name = body.Name
		user.Email = body.Email
		if err := DB.Save(&user).Error; err != nil {
			internalError(c, err, "could not update user")
			return
		}
	}

	// 2) the event must exist; the user change above stays either way
	var ev Event
	if err := DB.First(&ev, eventID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			jsonError(c, http.StatusNotFound, "event not found")
			return
		}
		internalError(c, err, "could not register")
		return
	}

	// 3) reject duplicates
	var existing Registration
	if err := DB.First(&existing, "username = ? AND event_id = ?", user.Username, eventID).Error; err == nil {
		jsonError(c, http.StatusConflict, "already registered")
		return
	} else if err != gorm.ErrRecordNotFound {
		internalError(c, err, "could not register")
		return
	}

	// 4) insert; a concurrent winner shows up as a duplicate-key error here
	reg := Registration{Username: user.Username, EventID: eventID}
	if err := DB.Create(&reg).Error; err != nil {
		if isDuplicateEntryError(err) {
			jsonError(c, http.StatusConflict, "already registered")
			return
		}
		internalError(c, err, "could not register")
		return
	}

	c.JSON(http.StatusCreated, reg)
}
