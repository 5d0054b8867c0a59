package api

import (
	stderrors "errors"
	"bytes"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	apperrors "github.com/avelar-dev/medikit/internal/errors"
	"github.com/avelar-dev/medikit/internal/medication"
)

// statusFor maps the error taxonomy onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case stderrors.Is(err, apperrors.ErrValidation):
		return fiber.StatusBadRequest
	case stderrors.Is(err, apperrors.ErrNotFound), stderrors.Is(err, apperrors.ErrLookupNoMatch):
		return fiber.StatusNotFound
	case stderrors.Is(err, apperrors.ErrUnauthorized):
		return fiber.StatusUnauthorized
	case stderrors.Is(err, apperrors.ErrLookupUnavailable):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

func (s *Server) fail(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	if status >= 500 {
		s.logger.Error("Request failed", zap.String("path", c.Path()), zap.Error(err))
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "healthy",
		"version":   "0.1.0",
		"timestamp": time.Now().Unix(),
	})
}

// ==================== Medications ====================

type medicationRequest struct {
	Name             string `json:"name"`
	Dose             string `json:"dose"`
	Form             string `json:"form"`
	Route            string `json:"route"`
	Lab              string `json:"lab"`
	ActiveIngredient string `json:"active_ingredient"`
	LeafletURL       string `json:"leaflet_url"`
	PhotoURL         string `json:"photo_url"`
	Notes            string `json:"notes"`
}

func (r medicationRequest) apply(m *medication.Medication) {
	m.Name = r.Name
	m.Dose = r.Dose
	m.Form = r.Form
	m.Route = r.Route
	m.Lab = r.Lab
	m.ActiveIngredient = r.ActiveIngredient
	m.LeafletURL = r.LeafletURL
	m.PhotoURL = r.PhotoURL
	m.Notes = r.Notes
}

func (s *Server) handleListMedications(c *fiber.Ctx) error {
	list, err := s.repo.List()
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(list)
}

func (s *Server) handleCreateMedication(c *fiber.Ctx) error {
	var req medicationRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}
	if req.Name == "" {
		return c.Status(400).JSON(fiber.Map{"error": "name is required"})
	}

	med := &medication.Medication{}
	req.apply(med)
	if err := s.repo.Add(med); err != nil {
		return s.fail(c, err)
	}
	return c.Status(201).JSON(med)
}

func (s *Server) handleGetMedication(c *fiber.Ctx) error {
	med, err := s.repo.Get(c.Params("id"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(med)
}

func (s *Server) handleUpdateMedication(c *fiber.Ctx) error {
	var req medicationRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}
	if req.Name == "" {
		return c.Status(400).JSON(fiber.Map{"error": "name is required"})
	}

	med, err := s.repo.Update(c.Params("id"), func(m *medication.Medication) error {
		req.apply(m)
		return nil
	})
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(med)
}

func (s *Server) handleDeleteMedication(c *fiber.Ctx) error {
	if err := s.reconciler.Delete(c.Params("id")); err != nil {
		return s.fail(c, err)
	}
	return c.SendStatus(204)
}

// ==================== Regimen ====================

func (s *Server) handleApplyRule(c *fiber.Ctx) error {
	var rule medication.Rule
	if err := c.BodyParser(&rule); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}

	out, err := s.reconciler.Apply(c.Params("id"), rule)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{
		"medication": out.Medication,
		"warnings":   out.Warnings,
	})
}

func (s *Server) handleRepairMedication(c *fiber.Ctx) error {
	out, err := s.reconciler.Repair(c.Params("id"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{
		"medication": out.Medication,
		"warnings":   out.Warnings,
	})
}

func (s *Server) handleListStale(c *fiber.Ctx) error {
	list, err := s.reconciler.ListNeedingReschedule()
	if err != nil {
		return s.fail(c, err)
	}
	if list == nil {
		list = []medication.Medication{}
	}
	return c.JSON(list)
}

func (s *Server) handleRepairAll(c *fiber.Ctx) error {
	n, err := s.reconciler.RepairAll()
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"repaired": n})
}

// ==================== Doses ====================

func (s *Server) handleListDoses(c *fiber.Ctx) error {
	date := c.Query("date")
	if date == "" {
		date = time.Now().In(s.loc).Format(medication.DateLayout)
	}
	entries, err := s.ledger.ListForDate(date)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"date": date, "doses": entries})
}

func (s *Server) handleSetDoseStatus(c *fiber.Ctx) error {
	index, err := c.ParamsInt("index")
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid occurrence index"})
	}
	var req struct {
		Status medication.DoseStatus `json:"status"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}

	med, err := s.ledger.SetStatus(c.Params("id"), index, req.Status)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(med)
}

func (s *Server) handleResetDoseStatus(c *fiber.Ctx) error {
	index, err := c.ParamsInt("index")
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid occurrence index"})
	}
	med, err := s.ledger.ResetStatus(c.Params("id"), index)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(med)
}

func (s *Server) handleAdherence(c *fiber.Ctx) error {
	now := time.Now().In(s.loc)
	from := c.Query("from", now.AddDate(0, 0, -30).Format(medication.DateLayout))
	to := c.Query("to", now.Format(medication.DateLayout))

	stats, err := s.history.Stats(from, to)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"from": from, "to": to, "stats": stats})
}

func (s *Server) handleDoseHistory(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	events, err := s.history.Events(c.Params("id"), limit)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(events)
}

// ==================== Drug registry ====================

func (s *Server) handleLookupByCode(c *fiber.Ctx) error {
	res, err := s.lookup.LookupByCode(c.Context(), c.Params("code"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(res)
}

func (s *Server) handleSearch(c *fiber.Ctx) error {
	results, err := s.lookup.SearchByText(c.Context(), c.Query("q"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(results)
}

func (s *Server) handleLeaflet(c *fiber.Ctx) error {
	url := c.Query("url")
	if url == "" {
		return c.Status(400).JSON(fiber.Map{"error": "url is required"})
	}
	leaflet, err := s.lookup.FetchLeaflet(c.Context(), url)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(leaflet)
}

// ==================== Backup ====================

func (s *Server) handleExport(c *fiber.Ctx) error {
	var buf bytes.Buffer
	if err := s.backup.Export(&buf); err != nil {
		return s.fail(c, err)
	}
	c.Set(fiber.HeaderContentType, "application/yaml")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="medikit-backup.yaml"`)
	return c.Send(buf.Bytes())
}

func (s *Server) handleImport(c *fiber.Ctx) error {
	n, err := s.backup.Import(bytes.NewReader(c.Body()))
	if err != nil {
		return s.fail(c, err)
	}
	// Restored records have no live alerts yet.
	repaired, err := s.reconciler.RepairAll()
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"imported": n, "repaired": repaired})
}
