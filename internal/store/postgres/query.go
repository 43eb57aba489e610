package postgres

import (
	"fmt"
	"math/big"

	"github.com/alanyoungcy/swapbot/internal/domain"
)

// appendListOpts adds the time window, newest-first ordering and pagination
// to query. argIdx is the next free placeholder number.
func appendListOpts(query string, args []any, argIdx int, opts domain.ListOpts) (string, []any) {
	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}
	return query, args
}

// Big integers travel as text so NUMERIC(78,0) keeps full uint256 range.

func bigToText(v *big.Int) *string {
	if v == nil {
		return nil
	}
	s := v.String()
	return &s
}

func textToBig(s *string) (*big.Int, error) {
	if s == nil {
		return nil, nil
	}
	v, ok := new(big.Int).SetString(*s, 10)
	if !ok {
		return nil, fmt.Errorf("postgres: bad integer %q", *s)
	}
	return v, nil
}
