package relaypager

import (
	"fmt"
	"math"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/samber/lo"
	"gorm.io/gorm"
)

type (
	ColumnAlias = string

	// ColumnMapping maps external column aliases to fully qualified column names.
	// Use it when bare column names could cause an "ambiguous column name" error.
	// Key is an external alias, value is an internal column name.
	ColumnMapping = map[ColumnAlias]string
)

// ParseSort builds ordering clauses from a list of strings in the format
// "column [asc|desc]". Column aliases are resolved via ColumnMapping.
// Returns an error naming the closest alias if an alias is not found in the
// mapping.
func ParseSort(stringsOrderings []string, columnMapping ColumnMapping) ([]OrderClause, error) {
	ret := make([]OrderClause, 0, len(stringsOrderings))
	aliases := lo.Keys(columnMapping)

	for _, stringOrdering := range stringsOrderings {
		cutStringOrdering := strings.Fields(stringOrdering)
		if len(cutStringOrdering) == 0 || len(cutStringOrdering) > 2 {
			return nil, fmt.Errorf("invalid ordering string format '%s'", stringOrdering)
		}

		direction := DirectionASC
		if len(cutStringOrdering) == 2 {
			var err error
			direction, err = ParseDirection(cutStringOrdering[1])
			if err != nil {
				return nil, err
			}
		}

		columnAlias := cutStringOrdering[0]
		columnName := columnMapping[columnAlias]
		if columnName == "" {
			return nil, fmt.Errorf("invalid column alias. closest: '%s'", closestAlias(columnAlias, aliases))
		}

		ret = append(ret, TextOrder(fmt.Sprintf("%s %s", columnName, direction)))
	}

	return ret, nil
}

// ApplySort appends the ordering clauses to a gorm query.
func ApplySort(db *gorm.DB, clauses []OrderClause) *gorm.DB {
	for _, c := range clauses {
		db = db.Order(c.String())
	}

	return db
}

func closestAlias(input ColumnAlias, dataSet []ColumnAlias) ColumnAlias {
	minDist := math.MaxInt
	closest := ""

	for _, dataSetAlias := range dataSet {
		dist := levenshtein.ComputeDistance(dataSetAlias, input)
		if dist < minDist || (dist == minDist && dataSetAlias < closest) {
			minDist = dist
			closest = dataSetAlias
		}
	}

	return closest
}
