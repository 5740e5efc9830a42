// Package temporal reconciles proposed action dates with weekday names
// stated in the source message.
//
// Reasoning passes sometimes pick a calendar date that does not fall on the
// weekday the sender wrote ("this Friday", "下周三"). The Corrector detects
// the stated weekday, computes the intended date relative to the message's
// local receipt time, and moves start/end/due onto that date while keeping
// each field's time of day and UTC offset.
package temporal
