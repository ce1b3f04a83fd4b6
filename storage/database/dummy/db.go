package dummydb

import (
	"sync"

	"github.com/elimuhq/darasa/core/badge"
	"github.com/elimuhq/darasa/core/certificate"
	"github.com/elimuhq/darasa/core/course"
	"github.com/elimuhq/darasa/core/user"
)

type (
	DB struct {
		user        *userTable
		course      *courseTable
		certificate *certificateTable
		badge       *badgeTable
	}

	userTable struct {
		sync.RWMutex
		table map[string]*user.User
	}

	courseTable struct {
		sync.RWMutex
		courses     map[string]*course.Course
		enrollments map[string]*course.Enrollment
	}

	certificateTable struct {
		sync.RWMutex
		table map[string]*certificate.Certificate
	}

	badgeTable struct {
		sync.RWMutex
		table map[string]*badge.Badge
	}
)

func Open() (*DB, error) {
	db := &DB{
		user:        &userTable{table: make(map[string]*user.User)},
		course:      &courseTable{courses: make(map[string]*course.Course), enrollments: make(map[string]*course.Enrollment)},
		certificate: &certificateTable{table: make(map[string]*certificate.Certificate)},
		badge:       &badgeTable{table: make(map[string]*badge.Badge)},
	}
	return db, nil
}
