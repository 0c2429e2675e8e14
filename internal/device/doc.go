// Package device drives the bell hardware: the amplifier relay and the
// audio player.
//
// The relay is a GPIO pin switched through periph.io, or a log-only stand
// in when no hardware is present. Sounds are played by an external decoder
// command. Playback is bounded: ordinary sounds stop after MaxPlay, the
// alarm loops until stopped or MaxAlarm elapses.
package device
