package middleware

import (
	"bytes"
	"database/sql"
	"io"
	"io/ioutil"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"server-rewards-app/internal/dao"
	"server-rewards-app/internal/pkg/generr"
	"server-rewards-app/internal/pkg/util"
)

const timeout = 60

type MultipleReader interface {
	Reader() io.ReadCloser
}

type myMultipleReader struct {
	data []byte
}

func newMultipleReader(reader io.Reader) (MultipleReader, error) {
	var data []byte
	var err error
	if reader != nil {
		data, err = ioutil.ReadAll(reader)
		if err != nil {
			return nil, err
		}
	} else {
		data = []byte{}
	}
	return &myMultipleReader{
		data: data,
	}, nil
}

func (m *myMultipleReader) Reader() io.ReadCloser {
	return ioutil.NopCloser(bytes.NewReader(m.data))
}

// ValidateSign checks the s/t/app_id signature of service-to-service calls
// against the app secret stored in db.
func ValidateSign(db dao.Querier, now func() time.Time) gin.HandlerFunc {
	if now == nil {
		now = time.Now
	}
	return func(c *gin.Context) {
		multipleReader, err := newMultipleReader(c.Request.Body)
		if err != nil {
			log.Errorf("err: %+v", errors.Wrap(err, "new multipleReader"))
			c.AbortWithStatusJSON(http.StatusInternalServerError, generr.ServerError)
			return
		}
		c.Request.Body = multipleReader.Reader()

		if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
			err = c.Request.ParseMultipartForm(32 << 20)
		} else {
			err = c.Request.ParseForm()
		}
		if err != nil {
			log.Errorf("err: %+v", errors.Wrap(err, "parse form"))
			c.AbortWithStatusJSON(http.StatusBadRequest, generr.ParseParam)
			return
		}
		// handlers bind the body again
		c.Request.Body = multipleReader.Reader()

		signCode := c.Request.Form.Get("s")
		if signCode == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, generr.SignMiss)
			return
		}

		tUnix, err := strconv.ParseInt(c.Request.Form.Get("t"), 10, 64)
		if err != nil {
			log.Errorf("err: %+v", errors.Wrap(err, "parse timestamp"))
			c.AbortWithStatusJSON(http.StatusBadRequest, generr.TimestampErr)
			return
		}

		if now().Unix()-tUnix > timeout {
			c.AbortWithStatusJSON(http.StatusBadRequest, generr.TimestampOut)
			return
		}

		appID := c.Request.Form.Get("app_id")
		key, err := dao.App.GetKey(c.Request.Context(), db, appID)
		if err == sql.ErrNoRows {
			c.AbortWithStatusJSON(http.StatusBadRequest, generr.AppNotFound)
			return
		}
		if err != nil {
			log.Errorf("err: %+v", errors.Wrap(err, "get app key"))
			c.AbortWithStatusJSON(http.StatusInternalServerError, generr.ReadDB)
			return
		}

		signStr := util.GenSignCode(c.Request.Form, key)
		if signStr != signCode {
			log.Infof("sign not match, signStr: %s, signCode:%s", signStr, signCode)
			c.AbortWithStatusJSON(http.StatusBadRequest, generr.SignNotMatch)
			return
		}
		c.Next()
	}
}
