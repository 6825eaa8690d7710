// Package harness drives a coordinator deterministically from a script.
//
// A CoordTest wires a coordinator and a single dataflow worker together
// through a feedback.Interceptor, so nothing the worker reports reaches the
// coordinator until a directive releases it. Time is a logical clock that
// only directives advance.
//
// # Directives
//
//	sql                        run the body in a fresh session, render outcomes
//	wait-sql exclude-uppers=() retry the body until every datum is true
//	async-sql session=NAME     run the body in a session kept under NAME
//	async-cancel session=NAME  cancel the outstanding work of NAME
//	await-sql session=NAME     render the deferred outcomes of NAME, close it
//	update-upper               inject "path N" frontier progress
//	inc-timestamp              advance the logical clock by the body
//	create-file name=FILE      create or truncate a fixture file
//	append-file name=FILE      append to a fixture file
//	print-catalog              render the catalog namespace
//
// The token <TEMP> in a body is replaced by the fixture directory.
//
// # Waiting
//
// The driver never waits on the coordinator for a query result. Resolving a
// row stream is a loop over two sources: the result handle and the arrival
// of new feedback, which is released to the coordinator as peek responses
// only. The one wall-clock bound is wait-sql's retry deadline, measured with
// an injected quartz.Clock and never slept on.
//
// Every failure is fatal: Execute returns a *FatalError and the run stops.
//
// # Scripts
//
// Scripts are datadriven files. RunTest runs one against a fresh CoordTest;
// go test's -rewrite flag regenerates mismatched expectations in place.
package harness
