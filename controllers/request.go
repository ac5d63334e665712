package controllers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	middleware "github.com/phillip/farewell-fund-go/middleware"
	services "github.com/phillip/farewell-fund-go/services"
	utils "github.com/phillip/farewell-fund-go/utils"
)

const requestTimeout = 5 * time.Second

func requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), requestTimeout)
}

func identity(c *gin.Context) *services.Identity {
	return middleware.CurrentIdentity(c)
}

// notModified sets ETag and reports whether the client already holds it.
func notModified(c *gin.Context, id string, updatedAt time.Time) bool {
	etag := utils.GenerateETag(id, updatedAt)
	c.Header("ETag", etag)
	c.Header("Last-Modified", updatedAt.UTC().Format(http.TimeFormat))
	if match := c.GetHeader("If-None-Match"); match != "" && match == etag {
		c.Status(http.StatusNotModified)
		return true
	}
	return false
}

// listVersion keys a list ETag on its newest row and its length.
func listVersion(id string, n int) string {
	return id + "#" + strconv.Itoa(n)
}

// bindOptionalJSON binds a JSON body when one was sent.
func bindOptionalJSON(c *gin.Context, obj interface{}) error {
	if err := c.ShouldBindJSON(obj); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
