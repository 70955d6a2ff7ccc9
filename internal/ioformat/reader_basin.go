package ioformat

import (
	"fmt"

	"ribasimcore/internal/apperror"
	"ribasimcore/internal/interp"
	"ribasimcore/internal/store"
)

// readBasins loads the Basin, BasinProfile, and BasinForcing tables.
// Table shapes (spec.md §6):
//
//	Basin(node_id, initial_storage)
//	BasinProfile(node_id, level, area)           -- one row per profile knot, ordered by level
//	BasinForcing(node_id, time, precipitation, surface_runoff, drainage, evaporation, infiltration)
func (r *Reader) readBasins(dense map[int64]int, extrap interp.Extrapolation, s *store.Store) error {
	n := len(dense)
	a := &s.Basin
	a.NodeID = idsInOrder(dense)
	a.ProfileLevel = make([][]float64, n)
	a.ProfileArea = make([][]float64, n)
	a.Precipitation = make([]*interp.Series, n)
	a.SurfaceRunoff = make([]*interp.Series, n)
	a.Drainage = make([]*interp.Series, n)
	a.Evaporation = make([]*interp.Series, n)
	a.Infiltration = make([]*interp.Series, n)
	a.InitialStorage = make([]float64, n)

	rows, err := r.db.Query(`SELECT node_id, initial_storage FROM Basin`)
	if err != nil {
		return fmt.Errorf("ioformat: read Basin: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var storage float64
		if err := rows.Scan(&id, &storage); err != nil {
			return err
		}
		if idx, ok := dense[id]; ok {
			a.InitialStorage[idx] = storage
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	profileRows, err := r.db.Query(`SELECT node_id, level, area FROM BasinProfile ORDER BY node_id, level`)
	if err != nil {
		return fmt.Errorf("ioformat: read BasinProfile: %w", err)
	}
	defer profileRows.Close()
	for profileRows.Next() {
		var id int64
		var level, area float64
		if err := profileRows.Scan(&id, &level, &area); err != nil {
			return err
		}
		idx, ok := dense[id]
		if !ok {
			continue
		}
		a.ProfileLevel[idx] = append(a.ProfileLevel[idx], level)
		a.ProfileArea[idx] = append(a.ProfileArea[idx], area)
	}
	if err := profileRows.Err(); err != nil {
		return err
	}

	var errs apperror.MultiError
	for id, idx := range dense {
		var err error
		if a.Precipitation[idx], err = r.series("BasinForcing", "precipitation", id, extrap); err != nil {
			errs.Add(err)
		}
		if a.SurfaceRunoff[idx], err = r.series("BasinForcing", "surface_runoff", id, extrap); err != nil {
			errs.Add(err)
		}
		if a.Drainage[idx], err = r.series("BasinForcing", "drainage", id, extrap); err != nil {
			errs.Add(err)
		}
		if a.Evaporation[idx], err = r.series("BasinForcing", "evaporation", id, extrap); err != nil {
			errs.Add(err)
		}
		if a.Infiltration[idx], err = r.series("BasinForcing", "infiltration", id, extrap); err != nil {
			errs.Add(err)
		}
	}
	return errs.AsError()
}

// validateBasinProfiles checks invariant 2 (strictly increasing level,
// non-decreasing positive area) across every loaded basin profile.
func validateBasinProfiles(s *store.Store) error {
	var errs apperror.MultiError
	for i, id := range s.Basin.NodeID {
		levels, areas := s.Basin.ProfileLevel[i], s.Basin.ProfileArea[i]
		if len(levels) < 2 {
			errs.Add(apperror.New(apperror.CategoryLoadValidation, apperror.CodeNonMonotoneProfile,
				fmt.Sprintf("basin %d has fewer than 2 profile knots", id)).WithField("BasinProfile"))
			continue
		}
		for k := 1; k < len(levels); k++ {
			if levels[k] <= levels[k-1] {
				errs.Add(apperror.New(apperror.CategoryLoadValidation, apperror.CodeNonMonotoneProfile,
					fmt.Sprintf("basin %d profile level not strictly increasing at knot %d", id, k)).WithField("BasinProfile"))
			}
			if areas[k] < areas[k-1] {
				errs.Add(apperror.New(apperror.CategoryLoadValidation, apperror.CodeNonMonotoneProfile,
					fmt.Sprintf("basin %d profile area decreases at knot %d", id, k)).WithField("BasinProfile"))
			}
		}
		for k, area := range areas {
			if area <= 0 {
				errs.Add(apperror.New(apperror.CategoryLoadValidation, apperror.CodeNonPositiveArea,
					fmt.Sprintf("basin %d profile area non-positive at knot %d", id, k)).WithField("BasinProfile"))
			}
		}
	}
	return errs.AsError()
}
