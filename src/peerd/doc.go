// Package peerd assembles a complete agent out of the protocol packages.
//
// A Peerd is created from a config.Config, initialised with Init and started
// with Run. Run publishes the agent's advertisement, joins the seeds listed in
// seeds.json, discovers the peers the agent follows, registers them with the
// payment connector and then follows advertisement updates until its context
// is cancelled. When Config.Respond is set, the agent also answers payment
// setup requests addressed to it.
package peerd
