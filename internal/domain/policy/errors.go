package policy

import "errors"

var errTopLevelFirst = errors.New("policy: FIRST combining algorithm is not permitted at the top level of a PDP configuration")
