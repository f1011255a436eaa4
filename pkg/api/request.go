package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/jakechorley/helpboard/pkg/core/geo"
	"github.com/jakechorley/helpboard/pkg/core/model"
	"github.com/jakechorley/helpboard/pkg/core/services"
)

var errBadRequest = errors.New("malformed request")

const maxJSONBody = 64 << 10

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}

// parseMultipart reads a multipart body into memory or temp files. The
// caller must call the returned cleanup.
func (s *Server) parseMultipart(w http.ResponseWriter, r *http.Request) (func(), error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxImageBytes+formOverhead)
	if err := r.ParseMultipartForm(formOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return func() {}, fmt.Errorf("%w: request body too large", errBadRequest)
		}
		return func() {}, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return func() { _ = r.MultipartForm.RemoveAll() }, nil
}

// formImage returns the uploaded file in field, or nil if none was sent
func formImage(r *http.Request, field string) (*model.Image, error) {
	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadRequest, err)
	}

	contentType := header.Header.Get("Content-Type")
	return &model.Image{
		Filename:    header.Filename,
		ContentType: contentType,
		Size:        header.Size,
		Body:        file,
	}, nil
}

// parseTaskInput accepts either a JSON body or a multipart form with an
// optional file in imageField
func (s *Server) parseTaskInput(w http.ResponseWriter, r *http.Request, imageField string) (services.TaskInput, func(), error) {
	var input services.TaskInput
	if !isMultipart(r) {
		return input, func() {}, decodeJSON(w, r, &input)
	}

	cleanup, err := s.parseMultipart(w, r)
	if err != nil {
		return input, cleanup, err
	}

	form := r.MultipartForm.Value
	input.Title = first(form, "title")
	input.Description = first(form, "description")
	input.Location = first(form, "location")
	input.Urgency = model.Urgency(first(form, "urgency"))
	input.MedicalPriority = first(form, "medical_priority")
	input.SkillTags = list(form, "skill_tags")

	if input.Latitude, err = optionalFloat(form, "latitude"); err != nil {
		return input, cleanup, err
	}
	if input.Longitude, err = optionalFloat(form, "longitude"); err != nil {
		return input, cleanup, err
	}
	if v := first(form, "wellness_check"); v != "" {
		if input.WellnessCheck, err = strconv.ParseBool(v); err != nil {
			return input, cleanup, fmt.Errorf("%w: wellness_check must be true or false", errBadRequest)
		}
	}

	if input.Image, err = formImage(r, imageField); err != nil {
		return input, cleanup, err
	}
	return input, closeImage(input.Image, cleanup), nil
}

// closeImage closes the image's file before running cleanup
func closeImage(img *model.Image, cleanup func()) func() {
	if img == nil {
		return cleanup
	}
	return func() {
		if c, ok := img.Body.(io.Closer); ok {
			_ = c.Close()
		}
		cleanup()
	}
}

func first(values url.Values, key string) string {
	return strings.TrimSpace(values.Get(key))
}

// list accepts repeated keys and comma separated values
func list(values url.Values, key string) []string {
	var out []string
	for _, v := range values[key] {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func optionalFloat(values url.Values, key string) (*float64, error) {
	v := first(values, key)
	if v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be a number", errBadRequest, key)
	}
	return &f, nil
}

// parseFilter reads lat, lng, radius, status, urgency and skill
func parseFilter(q url.Values) (geo.Filter, error) {
	var f geo.Filter

	lat, err := optionalFloat(q, "lat")
	if err != nil {
		return f, err
	}
	lng, err := optionalFloat(q, "lng")
	if err != nil {
		return f, err
	}
	if (lat == nil) != (lng == nil) {
		return f, fmt.Errorf("%w: lat and lng must be given together", errBadRequest)
	}
	if lat != nil {
		f.Center = &geo.Point{Lat: *lat, Lng: *lng}
	}

	radius, err := optionalFloat(q, "radius")
	if err != nil {
		return f, err
	}
	if radius != nil {
		if *radius < 0 {
			return f, fmt.Errorf("%w: radius must not be negative", errBadRequest)
		}
		f.RadiusKm = *radius
	}

	for _, s := range list(q, "status") {
		status := model.TaskStatus(strings.ToLower(s))
		if !status.IsValid() {
			return f, fmt.Errorf("%w: unknown status %q", errBadRequest, s)
		}
		f.Statuses = append(f.Statuses, status)
	}
	for _, u := range list(q, "urgency") {
		urgency := model.Urgency(strings.ToLower(u))
		if !urgency.IsValid() {
			return f, fmt.Errorf("%w: unknown urgency %q", errBadRequest, u)
		}
		f.Urgencies = append(f.Urgencies, urgency)
	}
	f.SkillTags = list(q, "skill")

	return f, nil
}
