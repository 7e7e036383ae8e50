// Package web serves the catfeed site: the landing page and location
// dashboards, login and registration, password reset, profile changes, and
// location posts with an optional photo.
//
// Every POST handler verifies the session's CSRF token before it changes
// anything, and reports outcomes through a flash notice and a redirect. Form
// validation errors re-render the form with the submitted values instead.
package web
