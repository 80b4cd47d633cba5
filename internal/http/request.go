package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/kjstillabower/agri-query-service/internal/dispatch"
	"github.com/kjstillabower/agri-query-service/internal/models"
	"github.com/kjstillabower/agri-query-service/internal/validation"
)

// maxBodyBytes bounds the dispatch request body.
const maxBodyBytes = 64 << 10

// coordinateField accepts a JSON number or string. Strings go through the
// character whitelist; numbers are already numeric and are taken as is.
type coordinateField struct {
	text   string
	number *float64
}

// errCoordinateType is returned by UnmarshalJSON for booleans, objects and arrays.
var errCoordinateType = models.NewError(models.KindInvalidCoordinate, "coordinate components must be numbers or numeric strings")

func (c *coordinateField) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		return nil
	case len(data) > 0 && data[0] == '"':
		return json.Unmarshal(data, &c.text)
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return errCoordinateType
	}
	v, err := n.Float64()
	if err != nil {
		return models.WrapError(models.KindInvalidCoordinate, n.String(), validation.ErrCoordinateNotNumeric)
	}
	c.number = &v
	return nil
}

func (c coordinateField) value(name string) (float64, error) {
	if c.number != nil {
		return *c.number, nil
	}
	return validation.ParseCoordinateComponent(name, c.text)
}

type coordinateBody struct {
	Latitude  coordinateField `json:"latitude"`
	Longitude coordinateField `json:"longitude"`
}

type timeWindowBody struct {
	Days  int    `json:"days"`
	Start string `json:"start" validate:"max=10"`
	End   string `json:"end" validate:"max=10"`
}

type dispatchBody struct {
	Capabilities []string           `json:"capabilities" validate:"required,min=1,max=8,dive,capability"`
	Coordinate   *coordinateBody    `json:"coordinate"`
	TimeWindow   *timeWindowBody    `json:"time_window"`
	QueryText    string             `json:"query_text"`
	Features     map[string]float64 `json:"features" validate:"omitempty,max=32"`
}

// requestError is a 400 response with a stable code.
type requestError struct {
	code    string
	message string
}

func (e *requestError) Error() string { return e.code + ": " + e.message }

func invalidRequest(format string, args ...any) *requestError {
	return &requestError{code: "INVALID_REQUEST", message: fmt.Sprintf(format, args...)}
}

// parseDispatchRequest decodes and validates the body. Coordinate and window
// problems are reported with their own codes; everything else is INVALID_REQUEST.
func parseDispatchRequest(r *http.Request, now time.Time, maxQueryRunes int) (dispatch.Request, *requestError) {
	var body dispatchBody
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		if errors.Is(err, models.ErrInvalidCoordinate) {
			return dispatch.Request{}, &requestError{code: "INVALID_COORDINATE", message: models.MessageOf(err)}
		}
		if errors.Is(err, io.EOF) {
			return dispatch.Request{}, invalidRequest("request body is required")
		}
		return dispatch.Request{}, invalidRequest("malformed JSON body: %v", err)
	}
	if err := validation.Struct(body); err != nil {
		return dispatch.Request{}, invalidRequest("%v", err)
	}

	req := dispatch.Request{ClientIP: clientIP(r), Features: body.Features}
	for _, s := range body.Capabilities {
		id, _ := models.ParseCapabilityID(s)
		req.Capabilities = append(req.Capabilities, id)
	}

	if body.Coordinate != nil {
		coord, err := parseCoordinate(body.Coordinate)
		if err != nil {
			return dispatch.Request{}, &requestError{code: "INVALID_COORDINATE", message: models.MessageOf(err)}
		}
		req.Coordinate = &coord
	}

	if body.TimeWindow != nil {
		w, err := validation.ParseTimeWindow(body.TimeWindow.Days, body.TimeWindow.Start, body.TimeWindow.End, now)
		if err != nil {
			return dispatch.Request{}, &requestError{code: "INVALID_RANGE", message: models.MessageOf(err)}
		}
		req.TimeWindow = w
	}

	if strings.TrimSpace(body.QueryText) != "" {
		q, err := validation.ValidateQueryText(body.QueryText, maxQueryRunes)
		if err != nil {
			return dispatch.Request{}, invalidRequest("query_text: %v", err)
		}
		req.QueryText = q
	}
	return req, nil
}

func parseCoordinate(body *coordinateBody) (models.Coordinate, error) {
	lat, err := body.Latitude.value("latitude")
	if err != nil {
		return models.Coordinate{}, err
	}
	lon, err := body.Longitude.value("longitude")
	if err != nil {
		return models.Coordinate{}, err
	}
	return models.NewCoordinate(lat, lon)
}

// clientIP returns the first X-Forwarded-For hop when present, else the peer address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first := strings.TrimSpace(strings.SplitN(fwd, ",", 2)[0])
		if net.ParseIP(first) != nil {
			return first
		}
	}
	return r.RemoteAddr
}
