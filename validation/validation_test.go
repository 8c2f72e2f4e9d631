package validation

import (
	"strings"
	"testing"

	"github.com/r74tech/raven-front/logger"
	"github.com/r74tech/raven-front/services/search"
	"github.com/stretchr/testify/require"
)

type testRequest struct {
	Query       string         `json:"query" validate:"valid_query"`
	Sort        string         `json:"sort" validate:"valid_sort"`
	Fields      []search.Field `json:"fields" validate:"valid_fields"`
	IndexName   string         `json:"indexName" validate:"valid_index"`
	HitsPerPage int            `json:"hitsPerPage" validate:"oneof=0 10 20 50"`
}

func validRequest() testRequest {
	return testRequest{
		Query:       "scp-173",
		Sort:        "created_at-desc",
		Fields:      []search.Field{search.FieldTitle, search.FieldSource},
		IndexName:   "site_scp-jp",
		HitsPerPage: 20,
	}
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name          string
		modify        func(request *testRequest)
		expectedError string
	}{
		{name: "Valid", modify: func(request *testRequest) {}},
		{name: "BlankQueryIsAllowed", modify: func(request *testRequest) { request.Query = "" }},
		{name: "WhitespaceQueryIsAllowed", modify: func(request *testRequest) { request.Query = "   " }},
		{name: "EmptySortIsAllowed", modify: func(request *testRequest) { request.Sort = "" }},
		{name: "EmptyFieldSetIsAllowed", modify: func(request *testRequest) { request.Fields = nil }},
		{name: "DefaultPageSize", modify: func(request *testRequest) { request.HitsPerPage = 0 }},
		{
			name:          "NullByteInQuery",
			modify:        func(request *testRequest) { request.Query = "scp\x00173" },
			expectedError: "invalid query",
		},
		{
			name:          "QueryTooLong",
			modify:        func(request *testRequest) { request.Query = strings.Repeat("あ", maxQueryLength+1) },
			expectedError: "invalid query",
		},
		{
			name:          "UnknownSort",
			modify:        func(request *testRequest) { request.Sort = "rating-desc" },
			expectedError: "invalid sort",
		},
		{
			name:          "UnknownField",
			modify:        func(request *testRequest) { request.Fields = []search.Field{"rating"} },
			expectedError: "invalid searchable fields",
		},
		{
			name:          "BlankIndex",
			modify:        func(request *testRequest) { request.IndexName = " " },
			expectedError: "invalid index name",
		},
		{
			name:          "IndexWithSlash",
			modify:        func(request *testRequest) { request.IndexName = "site/scp" },
			expectedError: "invalid index name",
		},
		{
			name:          "UnsupportedPageSize",
			modify:        func(request *testRequest) { request.HitsPerPage = 30 },
			expectedError: "field 'hitsPerPage' is not one of the allowed values",
		},
	}

	validator, err := New(logger.Discard())
	require.NoError(t, err)

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			assert := require.New(t)
			request := validRequest()
			testCase.modify(&request)

			err := validator.Validate(request)
			if testCase.expectedError == "" {
				assert.NoError(err)
				return
			}
			assert.EqualError(err, testCase.expectedError)
		})
	}
}
