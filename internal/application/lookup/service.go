// Package lookup drives the feature lookup of a molecule stream: for every
// molecule it resolves a display id, fingerprints the molecule, indexes its
// circular substructures and prints one line per occurrence of every
// fingerprint identifier.
package lookup

import (
	"context"
	"io"
	"time"

	"github.com/turtacn/ecfplookup/internal/domain/ecfp"
	"github.com/turtacn/ecfplookup/internal/domain/molecule"
	"github.com/turtacn/ecfplookup/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ecfplookup/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/ecfplookup/pkg/errors"
)

// MoleculeSource yields molecules until io.EOF.
type MoleculeSource interface {
	Read() (*molecule.Molecule, error)
}

// MoleculeResult describes the processing of one molecule.
type MoleculeResult struct {
	Identifiers     int
	Lines           int
	Inconsistencies int
}

// Summary describes a whole run.
type Summary struct {
	Molecules       int
	Lines           int
	Inconsistencies int
	// OutputClosed is set when the consumer of stdout went away and the run
	// stopped early.
	OutputClosed bool
	Duration     time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the diagnostics logger.
func WithLogger(logger logging.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics records run metrics.
func WithMetrics(m *prometheus.RunMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// Service processes molecules one at a time.  It is not safe for concurrent
// use.
type Service struct {
	engine   ecfp.Engine
	params   *ecfp.Parameters
	resolver IdentifierResolver
	sink     LineSink
	logger   logging.Logger
	metrics  *prometheus.RunMetrics
}

// NewService wires a Service.  params is shared read-only by every engine
// call.
func NewService(engine ecfp.Engine, params *ecfp.Parameters, resolver IdentifierResolver, sink LineSink, opts ...Option) (*Service, error) {
	if engine == nil {
		return nil, errors.InvalidParam("engine cannot be nil")
	}
	if params == nil {
		return nil, errors.InvalidParam("fingerprint parameters cannot be nil")
	}
	if sink == nil {
		return nil, errors.InvalidParam("output sink cannot be nil")
	}
	s := &Service{
		engine:   engine,
		params:   params,
		resolver: resolver,
		sink:     sink,
		logger:   logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Run reads src to the end and processes every molecule.  It stops at the
// first error.  Output is flushed on every return path; a broken pipe on the
// output ends the run without error.
func (s *Service) Run(ctx context.Context, src MoleculeSource) (sum *Summary, err error) {
	start := time.Now()
	sum = &Summary{}
	defer func() {
		if ferr := s.sink.Flush(); ferr != nil {
			switch {
			case IsBrokenPipe(ferr):
				sum.OutputClosed = true
			case err == nil:
				err = ferr
			}
		}
		if sum.OutputClosed && err != nil && IsBrokenPipe(err) {
			err = nil
		}
		sum.Duration = time.Since(start)
		prometheus.RecordRunEnd(s.metrics, sum.Duration, err)
		s.logSummary(sum, err)
	}()

	s.logger.Info("reading molecules",
		logging.String("parameters", s.params.Source),
		logging.String("id_mode", s.resolver.Mode()))

	count := 0
	for {
		m, rerr := src.Read()
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return sum, rerr
		}
		count++
		sum.Molecules = count
		prometheus.RecordMoleculeRead(s.metrics, m.Format.String())

		id, rerr := s.resolver.Resolve(count, m)
		if rerr != nil {
			return sum, rerr
		}

		res, perr := s.ProcessMolecule(ctx, m, id)
		sum.Lines += res.Lines
		sum.Inconsistencies += res.Inconsistencies
		if perr != nil {
			sum.OutputClosed = IsBrokenPipe(perr)
			return sum, perr
		}
	}

	if count == 0 {
		return sum, errors.New(errors.ErrCodeNoInput, "no molecule read")
	}
	return sum, nil
}

// ProcessMolecule fingerprints m, indexes its substructures and reports every
// occurrence of every fingerprint identifier under display id id.  An
// identifier without occurrences is logged and counted, then skipped.
func (s *Service) ProcessMolecule(ctx context.Context, m *molecule.Molecule, id string) (MoleculeResult, error) {
	var res MoleculeResult
	log := s.logger.With(logging.Int("record", m.Index), logging.String("id", id))

	log.Info("calculating fingerprint")
	timer := prometheus.StartEngineCall(s.metrics, prometheus.OpFingerprint)
	ids, err := s.engine.GenerateFingerprint(ctx, s.params, m)
	elapsed := prometheus.RecordEngineCall(s.metrics, prometheus.OpFingerprint, timer, err)
	if err != nil {
		return res, withCode(err, errors.ErrCodeFingerprintGenerationFailed, id)
	}
	res.Identifiers = ids.Len()
	log.Debug("feature identifiers calculated",
		logging.Int("count", ids.Len()),
		logging.String("identifiers", ids.String()),
		logging.Duration("elapsed", elapsed))

	log.Debug("looking up identifiers")
	timer = prometheus.StartEngineCall(s.metrics, prometheus.OpLookup)
	index, err := s.engine.BuildLookup(ctx, s.params, m)
	prometheus.RecordEngineCall(s.metrics, prometheus.OpLookup, timer, err)
	if err != nil {
		return res, withCode(err, errors.ErrCodeFeatureLookupFailed, id)
	}
	log.Debug("lookup index built", logging.Int("occurrences", index.Occurrences()))

	err = ids.Each(func(fid int32) error {
		occurrences := index.Lookup(fid)
		if len(occurrences) == 0 {
			res.Inconsistencies++
			prometheus.RecordInconsistency(s.metrics)
			log.Warn(errors.DefaultMessageForCode(errors.ErrCodeFeatureIndexInconsistent),
				logging.String("code", errors.ErrCodeFeatureIndexInconsistent.String()),
				logging.Int64("identifier", int64(fid)))
			return nil
		}
		log.Debug("looking up feature", logging.Int64("identifier", int64(fid)), logging.Int("occurrences", len(occurrences)))

		for _, f := range occurrences {
			timer := prometheus.StartEngineCall(s.metrics, prometheus.OpSMARTS)
			smarts, err := s.engine.RenderSMARTS(ctx, f.Substructure)
			prometheus.RecordEngineCall(s.metrics, prometheus.OpSMARTS, timer, err)
			if err != nil {
				return withCode(err, errors.ErrCodeSMARTSExportFailed, id)
			}
			log.Debug("feature occurrence",
				logging.Int("atom", f.CenterAtom),
				logging.Int("diameter", f.Diameter),
				logging.String("smarts", smarts))

			if err := s.sink.Report(Line{
				SMARTS:      smarts,
				ID:          id,
				Identifier:  f.Identifier,
				BitPosition: f.BitPosition,
				Diameter:    f.Diameter,
				CenterAtom:  f.CenterAtom,
			}); err != nil {
				return err
			}
			res.Lines++
			prometheus.RecordFeatureLine(s.metrics)
		}
		return nil
	})
	return res, err
}

// withCode makes sure err carries code.  Engine adapters usually attach it
// already.
func withCode(err error, code errors.ErrorCode, id string) error {
	if errors.IsCode(err, code) {
		return err
	}
	return errors.Wrap(err, code, errors.DefaultMessageForCode(code)).WithDetail("id " + id)
}

func (s *Service) logSummary(sum *Summary, err error) {
	fields := []logging.Field{
		logging.Int("molecules", sum.Molecules),
		logging.Int("lines", sum.Lines),
		logging.Int("inconsistencies", sum.Inconsistencies),
		logging.Duration("duration", sum.Duration),
	}
	switch {
	case err != nil:
		s.logger.Error("run failed", append(fields,
			logging.String("code", errors.GetCode(err).String()),
			logging.Err(err))...)
	case sum.OutputClosed:
		s.logger.Info("output closed, run stopped early", fields...)
	default:
		s.logger.Info("run finished", fields...)
	}
}
