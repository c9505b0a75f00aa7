package visit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/triage/internal/domain/doctor"
	"github.com/clinic/triage/internal/domain/queue"
	"github.com/clinic/triage/internal/domain/triage"
)

// Service is the visit lifecycle controller: it owns status transitions
// and orchestrates classification, scoring, doctor selection, and queue
// maintenance around them.
type Service struct {
	visits      Repository
	assessments triage.AssessmentRepository
	doctors     doctor.Repository
	entries     queue.Repository

	classifier triage.Classifier
	scorer     *triage.Scorer
	selector   *doctor.Selector
	store      *queue.Store
	reconciler *queue.Reconciler

	tx                queue.TxRunner
	avgConsultMinutes int
	now               func() time.Time
	logger            zerolog.Logger
}

// ServiceDeps bundles the service's collaborators; every field is
// required except AvgConsultMinutes, which defaults to 15.
type ServiceDeps struct {
	Visits      Repository
	Assessments triage.AssessmentRepository
	Doctors     doctor.Repository
	Entries     queue.Repository

	Classifier triage.Classifier
	Scorer     *triage.Scorer
	Selector   *doctor.Selector
	Store      *queue.Store
	Reconciler *queue.Reconciler

	Tx                queue.TxRunner
	AvgConsultMinutes int
	Logger            zerolog.Logger
}

func NewService(deps ServiceDeps) *Service {
	if deps.AvgConsultMinutes <= 0 {
		deps.AvgConsultMinutes = 15
	}
	if deps.Tx == nil {
		deps.Tx = queue.PassthroughTx
	}
	return &Service{
		visits:            deps.Visits,
		assessments:       deps.Assessments,
		doctors:           deps.Doctors,
		entries:           deps.Entries,
		classifier:        deps.Classifier,
		scorer:            deps.Scorer,
		selector:          deps.Selector,
		store:             deps.Store,
		reconciler:        deps.Reconciler,
		tx:                deps.Tx,
		avgConsultMinutes: deps.AvgConsultMinutes,
		now:               time.Now,
		logger:            deps.Logger,
	}
}

// WithClock overrides the service time source for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// CreateVisitInput is the intake request.
type CreateVisitInput struct {
	PatientID uuid.UUID     `json:"patient_id"`
	Type      VisitType     `json:"visit_type"`
	Emergency bool          `json:"emergency"`
	Intake    triage.Intake `json:"intake"`

	// DoctorID bypasses the selector when the desk staff picks a doctor
	// by hand.
	DoctorID *uuid.UUID `json:"doctor_id,omitempty"`
	// UsePreferredDoctor disables the continuity-of-care lookup when
	// false. Nil means true.
	UsePreferredDoctor *bool `json:"use_preferred_doctor,omitempty"`
}

// CreateVisitResult reports what intake produced. AssignedDoctorID is nil
// when every selection tier was exhausted; the visit still exists.
type CreateVisitResult struct {
	Visit                *Visit           `json:"visit"`
	RiskLevel            triage.RiskLevel `json:"risk_level"`
	RiskScore            int              `json:"risk_score"`
	StaticScore          int              `json:"static_score"`
	Emergency            bool             `json:"emergency"`
	AssignedDoctorID     *uuid.UUID       `json:"assigned_doctor_id"`
	QueuePosition        int              `json:"queue_position"`
	EstimatedWaitMinutes int              `json:"estimated_wait_minutes"`
}

// CreateVisit runs the full intake sequence: classify, score, select a
// doctor, enqueue, reconcile. Classification or scoring failures abort
// before anything is persisted. Selection exhaustion does not: the visit
// is created unassigned.
func (s *Service) CreateVisit(ctx context.Context, in CreateVisitInput) (*CreateVisitResult, error) {
	if in.PatientID == uuid.Nil {
		return nil, fmt.Errorf("%w: patient_id is required", triage.ErrInvalidInput)
	}
	if in.Type == "" {
		in.Type = TypeWalkIn
	}
	if in.Type != TypeWalkIn && in.Type != TypeRemote {
		return nil, fmt.Errorf("%w: unknown visit type %q", triage.ErrInvalidInput, in.Type)
	}

	cls, err := s.classifier.Classify(ctx, in.Intake)
	if err != nil {
		if errors.Is(err, triage.ErrClassifierUnavailable) {
			return nil, fmt.Errorf("classify intake: %w", err)
		}
		return nil, fmt.Errorf("classify intake: %w: %v", triage.ErrClassifierUnavailable, err)
	}
	if !cls.Level.Valid() {
		return nil, fmt.Errorf("%w: classifier returned unknown risk level %q", triage.ErrInvalidInput, cls.Level)
	}

	scored, err := s.scorer.Score(triage.ScoreInput{
		RiskScore:         cls.Score,
		Age:               in.Intake.Age,
		ChronicConditions: in.Intake.ChronicConditions,
		Symptoms:          in.Intake.Symptoms,
		Emergency:         in.Emergency,
	})
	if err != nil {
		return nil, fmt.Errorf("score intake: %w", err)
	}

	v := &Visit{
		ID:        uuid.New(),
		PatientID: in.PatientID,
		Type:      in.Type,
		Status:    StatusWaiting,
		Emergency: scored.Emergency,
		ArrivedAt: s.now(),
	}
	err = s.tx(ctx, func(ctx context.Context) error {
		if err := s.visits.Create(ctx, v); err != nil {
			return fmt.Errorf("create visit: %w", err)
		}
		a := &triage.Assessment{
			VisitID:              v.ID,
			Level:                cls.Level,
			Score:                cls.Score,
			Confidence:           cls.Confidence,
			RecommendedSpecialty: cls.RecommendedSpecialty,
		}
		if cls.ModelVersion != "" {
			a.ModelVersion = &cls.ModelVersion
		}
		if err := s.assessments.Create(ctx, a); err != nil {
			return fmt.Errorf("create assessment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if cls.Level == triage.RiskHigh {
		s.raiseEmergencyAlert(ctx, v.ID, cls)
	}

	result := &CreateVisitResult{
		Visit:       v,
		RiskLevel:   cls.Level,
		RiskScore:   cls.Score,
		StaticScore: scored.Score,
		Emergency:   scored.Emergency,
	}

	selection, err := s.pickDoctor(ctx, in, cls)
	if errors.Is(err, ErrNoDoctorAvailable) {
		s.logger.Info().
			Str("visit_id", v.ID.String()).
			Str("specialty", cls.RecommendedSpecialty).
			Msg("visit created unassigned, no doctor available")
		s.appendEvent(ctx, v.ID, EventVisitCreated, "unassigned")
		return result, nil
	}
	if err != nil {
		return nil, err
	}

	doctorID := selection.Doctor.ID
	if err := s.visits.CreateAssignment(ctx, &Assignment{
		VisitID:  v.ID,
		DoctorID: doctorID,
		Active:   true,
	}); err != nil {
		return nil, fmt.Errorf("create assignment: %w", err)
	}
	result.AssignedDoctorID = &doctorID

	// The visit, assessment, and assignment are committed at this point.
	// Queue maintenance failures are logged, not surfaced: the visit
	// comes back assigned with no queue position rather than erroring
	// out of an intake that already happened.
	if _, err := s.store.Enqueue(ctx, v.ID, doctorID, scored.Score, scored.Emergency); err != nil {
		s.logger.Error().Err(err).
			Str("visit_id", v.ID.String()).
			Str("doctor_id", doctorID.String()).
			Msg("enqueue failed")
		s.appendEvent(ctx, v.ID, EventVisitCreated, string(cls.Level))
		return result, nil
	}
	snapshot, err := s.reconciler.Reconcile(ctx, doctorID)
	if err != nil {
		s.logger.Error().Err(err).
			Str("visit_id", v.ID.String()).
			Str("doctor_id", doctorID.String()).
			Msg("post-enqueue reconcile failed")
		s.appendEvent(ctx, v.ID, EventVisitCreated, string(cls.Level))
		return result, nil
	}

	result.QueuePosition = positionOf(snapshot, v.ID)
	if result.QueuePosition > 0 {
		result.EstimatedWaitMinutes = (result.QueuePosition - 1) * s.avgConsultMinutes
	}

	s.appendEvent(ctx, v.ID, EventVisitCreated, string(cls.Level))
	return result, nil
}

// ErrNoDoctorAvailable re-exports the selector's sentinel so handler code
// only imports this package.
var ErrNoDoctorAvailable = doctor.ErrNoDoctorAvailable

func (s *Service) pickDoctor(ctx context.Context, in CreateVisitInput, cls *triage.Classification) (*doctor.Selection, error) {
	if in.DoctorID != nil {
		profile, err := s.doctors.GetByID(ctx, *in.DoctorID)
		if err != nil {
			if errors.Is(err, doctor.ErrDoctorNotFound) {
				return nil, fmt.Errorf("%w: doctor %s", triage.ErrInvalidInput, *in.DoctorID)
			}
			return nil, fmt.Errorf("load doctor: %w", err)
		}
		if !profile.Available {
			return nil, fmt.Errorf("%w: doctor %s is not available", triage.ErrInvalidInput, *in.DoctorID)
		}
		return &doctor.Selection{Doctor: profile}, nil
	}

	var patientID *uuid.UUID
	if in.UsePreferredDoctor == nil || *in.UsePreferredDoctor {
		pid := in.PatientID
		patientID = &pid
	}
	return s.selector.Select(ctx, cls.RecommendedSpecialty, cls.Level, patientID)
}

// StartConsultation moves a waiting visit into consultation. The queue
// entry stays put until completion so the desk keeps visibility into who
// is currently being seen.
func (s *Service) StartConsultation(ctx context.Context, visitID uuid.UUID) (*Visit, error) {
	v, err := s.visits.GetByID(ctx, visitID)
	if err != nil {
		return nil, err
	}
	if !v.Status.CanTransition(StatusInConsultation) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, v.Status, StatusInConsultation)
	}
	if err := s.visits.UpdateStatus(ctx, visitID, StatusInConsultation, nil); err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}
	v.Status = StatusInConsultation

	s.appendEvent(ctx, visitID, EventConsultationStarted, "")
	return v, nil
}

// CompleteConsultation finishes a visit: terminal status, assignment
// deactivated, queue entry removed, continuity preference refreshed, and
// the doctor's queue reconciled so the remaining patients close ranks.
func (s *Service) CompleteConsultation(ctx context.Context, visitID uuid.UUID) (*Visit, error) {
	v, err := s.visits.GetByID(ctx, visitID)
	if err != nil {
		return nil, err
	}
	if !v.Status.CanTransition(StatusCompleted) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, v.Status, StatusCompleted)
	}

	assignment, err := s.visits.ActiveAssignment(ctx, visitID)
	if err != nil && !errors.Is(err, ErrAssignmentNotFound) {
		return nil, fmt.Errorf("load assignment: %w", err)
	}

	completedAt := s.now()
	err = s.tx(ctx, func(ctx context.Context) error {
		if err := s.visits.UpdateStatus(ctx, visitID, StatusCompleted, &completedAt); err != nil {
			return fmt.Errorf("update status: %w", err)
		}
		if assignment != nil {
			if err := s.visits.DeactivateAssignment(ctx, visitID); err != nil &&
				!errors.Is(err, ErrAssignmentNotFound) {
				return fmt.Errorf("deactivate assignment: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	v.Status = StatusCompleted
	v.CompletedAt = &completedAt

	if assignment != nil {
		if err := s.visits.UpsertPreference(ctx, v.PatientID, assignment.DoctorID, completedAt); err != nil {
			s.logger.Error().Err(err).
				Str("visit_id", visitID.String()).
				Msg("preference upsert failed")
		}
	}

	s.removeFromQueue(ctx, visitID)
	s.appendEvent(ctx, visitID, EventConsultationCompleted, "")
	return v, nil
}

// CancelVisit abandons a waiting visit: dequeue without completion. No
// preference is recorded.
func (s *Service) CancelVisit(ctx context.Context, visitID uuid.UUID) (*Visit, error) {
	v, err := s.visits.GetByID(ctx, visitID)
	if err != nil {
		return nil, err
	}
	if !v.Status.CanTransition(StatusCancelled) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, v.Status, StatusCancelled)
	}

	if err := s.visits.UpdateStatus(ctx, visitID, StatusCancelled, nil); err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}
	v.Status = StatusCancelled

	if err := s.visits.DeactivateAssignment(ctx, visitID); err != nil &&
		!errors.Is(err, ErrAssignmentNotFound) {
		return nil, fmt.Errorf("deactivate assignment: %w", err)
	}

	s.removeFromQueue(ctx, visitID)
	s.appendEvent(ctx, visitID, EventVisitCancelled, "")
	return v, nil
}

// OverrideRisk records a clinician's manual risk label, rescoring the
// queue entry with the label-mapped priority and reconciling the queue.
// The original assessment stays in place; the override is a new row.
func (s *Service) OverrideRisk(ctx context.Context, visitID uuid.UUID, level triage.RiskLevel, overriddenBy string) (*triage.Assessment, error) {
	if !level.Valid() {
		return nil, fmt.Errorf("%w: unknown risk level %q", triage.ErrInvalidInput, level)
	}

	v, err := s.visits.GetByID(ctx, visitID)
	if err != nil {
		return nil, err
	}
	if v.Status == StatusCompleted || v.Status == StatusCancelled {
		return nil, fmt.Errorf("%w: visit is %s", ErrInvalidTransition, v.Status)
	}

	prior, err := s.assessments.LatestByVisit(ctx, visitID)
	if err != nil {
		return nil, fmt.Errorf("load assessment: %w", err)
	}

	override := &triage.Assessment{
		VisitID:              visitID,
		Level:                level,
		Score:                prior.Score,
		Confidence:           prior.Confidence,
		RecommendedSpecialty: prior.RecommendedSpecialty,
		Overridden:           true,
	}
	if overriddenBy != "" {
		override.OverriddenBy = &overriddenBy
	}
	if err := s.assessments.Create(ctx, override); err != nil {
		return nil, fmt.Errorf("create override assessment: %w", err)
	}

	staticScore := triage.OverridePriority(level)
	doctorID, err := s.store.Rescore(ctx, visitID, staticScore)
	if err != nil {
		if errors.Is(err, queue.ErrEntryNotFound) {
			// Unassigned visit, nothing queued to rescore.
			s.appendEvent(ctx, visitID, EventRiskOverridden, string(level))
			return override, nil
		}
		return nil, fmt.Errorf("rescore queue entry: %w", err)
	}
	if _, err := s.reconciler.Reconcile(ctx, doctorID); err != nil {
		return nil, fmt.Errorf("reconcile queue: %w", err)
	}

	s.appendEvent(ctx, visitID, EventRiskOverridden, string(level))
	return override, nil
}

// Detail is the read model for one visit.
type Detail struct {
	Visit      *Visit             `json:"visit"`
	Assessment *triage.Assessment `json:"assessment,omitempty"`
	Assignment *Assignment        `json:"assignment,omitempty"`
	QueueEntry *queue.Entry       `json:"queue_entry,omitempty"`
}

// GetVisit loads the visit with its latest assessment, active assignment,
// and queue entry when present.
func (s *Service) GetVisit(ctx context.Context, visitID uuid.UUID) (*Detail, error) {
	v, err := s.visits.GetByID(ctx, visitID)
	if err != nil {
		return nil, err
	}
	d := &Detail{Visit: v}

	if a, err := s.assessments.LatestByVisit(ctx, visitID); err == nil {
		d.Assessment = a
	} else if !errors.Is(err, triage.ErrAssessmentNotFound) {
		return nil, fmt.Errorf("load assessment: %w", err)
	}

	if asg, err := s.visits.ActiveAssignment(ctx, visitID); err == nil {
		d.Assignment = asg
	} else if !errors.Is(err, ErrAssignmentNotFound) {
		return nil, fmt.Errorf("load assignment: %w", err)
	}

	if e, err := s.entries.GetByVisit(ctx, visitID); err == nil {
		d.QueueEntry = e
	} else if !errors.Is(err, queue.ErrEntryNotFound) {
		return nil, fmt.Errorf("load queue entry: %w", err)
	}

	return d, nil
}

// GetDoctorQueue reconciles and returns the doctor's current ordering, so
// callers always see fresh wait boosts.
func (s *Service) GetDoctorQueue(ctx context.Context, doctorID uuid.UUID) (*queue.Snapshot, error) {
	return s.reconciler.Reconcile(ctx, doctorID)
}

// RecomputeAll reconciles every non-empty queue and returns how many
// doctors were processed.
func (s *Service) RecomputeAll(ctx context.Context) (int, error) {
	return s.reconciler.ReconcileAll(ctx)
}

// ListPatientVisits pages through a patient's visit history, newest first.
func (s *Service) ListPatientVisits(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Visit, int, error) {
	return s.visits.ListByPatient(ctx, patientID, limit, offset)
}

// removeFromQueue dequeues the visit and reconciles the affected doctor.
// Queue maintenance failures are logged, not surfaced: the lifecycle
// transition already committed.
func (s *Service) removeFromQueue(ctx context.Context, visitID uuid.UUID) {
	doctorID, removed, err := s.store.Dequeue(ctx, visitID)
	if err != nil {
		s.logger.Error().Err(err).
			Str("visit_id", visitID.String()).
			Msg("dequeue failed")
		return
	}
	if !removed {
		return
	}
	if _, err := s.reconciler.Reconcile(ctx, doctorID); err != nil {
		s.logger.Error().Err(err).
			Str("doctor_id", doctorID.String()).
			Msg("post-dequeue reconcile failed")
	}
}

func (s *Service) appendEvent(ctx context.Context, visitID uuid.UUID, typ EventType, detail string) {
	if err := s.visits.AppendEvent(ctx, &Event{VisitID: visitID, Type: typ, Detail: detail}); err != nil {
		s.logger.Error().Err(err).
			Str("visit_id", visitID.String()).
			Str("event_type", string(typ)).
			Msg("event append failed")
	}
}

func (s *Service) raiseEmergencyAlert(ctx context.Context, visitID uuid.UUID, cls *triage.Classification) {
	s.logger.Warn().
		Str("visit_id", visitID.String()).
		Str("risk_level", string(cls.Level)).
		Int("risk_score", cls.Score).
		Msg("high-risk classification")
	if err := s.visits.CreateAlert(ctx, &EmergencyAlert{
		VisitID:   visitID,
		RiskLevel: string(cls.Level),
		Message:   cls.Explanation,
	}); err != nil {
		s.logger.Error().Err(err).
			Str("visit_id", visitID.String()).
			Msg("emergency alert write failed")
	}
}

func positionOf(snapshot *queue.Snapshot, visitID uuid.UUID) int {
	for _, e := range snapshot.Entries {
		if e.VisitID == visitID {
			return e.Position
		}
	}
	return 0
}
