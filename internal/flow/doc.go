// Package flow is the checkout transaction each virtual user repeats:
//
//	ADDRESS  ensure the user has a saved address
//	STEP1    resolve product detail, price and first variant
//	STEP3    add one unit to the cart (201)
//	STEP4    read the cart back (non-empty array)
//	STEP5    create the order, retried on transient statuses
//	STEP6    initiate payment, retried on gateway statuses
//	STEP7/8  settle the cart, manually or by waiting for the event chain
//
// A completed pass increments tx_completed. Any other outcome is a
// [*StepError] naming the step, the user and the last response seen.
package flow
