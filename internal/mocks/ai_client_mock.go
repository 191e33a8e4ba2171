package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"cinegenius-server/internal/ai"
	"cinegenius-server/internal/models"
)

// MockClient is a mock type for the ai.Client type
type MockClient struct {
	mock.Mock
}

// Invoke provides a mock function with given fields: ctx, req
func (_m *MockClient) Invoke(ctx context.Context, req ai.Request) (ai.Outcome, error) {
	ret := _m.Called(ctx, req)

	var r0 ai.Outcome
	if rf, ok := ret.Get(0).(func(context.Context, ai.Request) ai.Outcome); ok {
		r0 = rf(ctx, req)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).(ai.Outcome)
	}

	var r1 error
	if rf, ok := ret.Get(1).(func(context.Context, ai.Request) error); ok {
		r1 = rf(ctx, req)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// Backend provides a mock function with no fields
func (_m *MockClient) Backend() string {
	ret := _m.Called()
	if rf, ok := ret.Get(0).(func() string); ok {
		return rf()
	}
	return ret.String(0)
}

// NewMockClient creates a new instance of MockClient. It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
func NewMockClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockClient {
	m := &MockClient{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

var _ ai.Client = (*MockClient)(nil)

// MockResultRecorder is a mock type for the ai.ResultRecorder type
type MockResultRecorder struct {
	mock.Mock
}

// Save provides a mock function with given fields: ctx, result
func (_m *MockResultRecorder) Save(ctx context.Context, result *models.GenerationResult) error {
	ret := _m.Called(ctx, result)
	if rf, ok := ret.Get(0).(func(context.Context, *models.GenerationResult) error); ok {
		return rf(ctx, result)
	}
	return ret.Error(0)
}

// NewMockResultRecorder creates a new instance of MockResultRecorder.
func NewMockResultRecorder(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockResultRecorder {
	m := &MockResultRecorder{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

var _ ai.ResultRecorder = (*MockResultRecorder)(nil)
