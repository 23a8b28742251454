package server

import (
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v3"

	"github.com/raphaelgruber/serpcluster/internal/service"
)

// jsonSuccess returns data wrapped in the standard envelope.
func jsonSuccess(c fiber.Ctx, status int, data any) error {
	return c.Status(status).JSON(fiber.Map{
		"status": "ok",
		"data":   data,
	})
}

// jsonError returns an error response with the given HTTP status code.
func jsonError(c fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"status": "error",
		"error":  message,
	})
}

// statusFor maps service errors to HTTP status codes. Anything that is not
// a known server-side condition is a bad request.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrRunNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, service.ErrNoFetcher):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusBadRequest
	}
}

func (s *Server) health(c fiber.Ctx) error {
	return jsonSuccess(c, fiber.StatusOK, fiber.Map{
		"version":   s.version,
		"can_fetch": s.pipeline != nil && s.pipeline.CanFetch(),
	})
}

func (s *Server) parseRequest(c fiber.Ctx) (service.RunRequest, service.PipelineOptions, error) {
	var req service.RunRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return req, service.PipelineOptions{}, errors.New("invalid request body")
	}
	opts, err := req.Options(s.defaults)
	return req, opts, err
}

func (s *Server) startRun(c fiber.Ctx) error {
	req, opts, err := s.parseRequest(c)
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, err.Error())
	}

	run, err := s.runs.Start(req.Keywords, opts)
	if err != nil {
		return jsonError(c, statusFor(err), err.Error())
	}
	return jsonSuccess(c, fiber.StatusAccepted, run.Snapshot())
}

func (s *Server) listRuns(c fiber.Ctx) error {
	runs := s.runs.List()
	out := make([]service.RunSnapshot, 0, len(runs))
	for _, r := range runs {
		snap := r.Snapshot()
		snap.Report = nil
		out = append(out, snap)
	}
	return jsonSuccess(c, fiber.StatusOK, out)
}

func (s *Server) getRun(c fiber.Ctx) error {
	run, err := s.runs.Get(c.Params("id"))
	if err != nil {
		return jsonError(c, statusFor(err), err.Error())
	}
	return jsonSuccess(c, fiber.StatusOK, run.Snapshot())
}

func (s *Server) clusterCached(c fiber.Ctx) error {
	req, opts, err := s.parseRequest(c)
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, err.Error())
	}

	report, err := s.pipeline.ClusterCached(c.Context(), req.Keywords, opts)
	if err != nil {
		if errors.Is(err, service.ErrNoKeywords) {
			return jsonError(c, fiber.StatusBadRequest, err.Error())
		}
		s.logger.Error("cache-only clustering failed", "error", err)
		return jsonError(c, fiber.StatusInternalServerError, err.Error())
	}
	return jsonSuccess(c, fiber.StatusOK, report)
}
